// Package access implements the three-tier share access control described
// open (key travels in the token), member (per-user
// wrapped keys plus a zero-knowledge commitment), and passphrase
// (scrypt-derived wrap key, with a PBKDF2 verification hash kept on a
// separate salt so a wrong passphrase and a wrong member key are
// indistinguishable to a caller — no oracle).
package access

import (
	"crypto/subtle"
	"fmt"
	"time"

	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// Control wires share creation and access verification to the store.
type Control struct {
	store storage.Store
	newID func() (string, error)
}

func New(store storage.Store, newID func() (string, error)) *Control {
	return &Control{store: store, newID: newID}
}

// CreateOpenShareParams configures an open-tier share. MasterKey, when
// set, must be the key the folder's segments were already encrypted
// with (publish_folder always supplies it); left nil, a fresh key is
// minted, which only makes sense for a share with no segments yet.
type CreateOpenShareParams struct {
	FolderID      string
	FolderVersion int
	Kind          types.ShareKind
	Index         types.IndexRef
	ExpiryDays    int
	MasterKey     []byte
}

// CreateOpenShare makes a share whose master key is embedded directly in
// the token: anyone holding the token can decrypt.
func (c *Control) CreateOpenShare(p CreateOpenShareParams) (*types.Share, []byte, error) {
	masterKey, err := masterKeyOrNew(p.MasterKey)
	if err != nil {
		return nil, nil, errs.Fatal("access.CreateOpenShare", err)
	}

	share, err := c.newShare(p.FolderID, p.FolderVersion, p.Kind, types.TierOpen, p.Index, p.ExpiryDays)
	if err != nil {
		return nil, nil, err
	}
	share.WrappedMasterKey = masterKey // open tier: no wrap, key rides in the token verbatim

	if err := c.store.CreateShare(share); err != nil {
		return nil, nil, errs.Transient("access.CreateOpenShare", err)
	}
	return share, masterKey, nil
}

// CreateMemberShareParams configures a member-tier share. MasterKey, when
// set, must be the key the folder's segments were already encrypted with.
type CreateMemberShareParams struct {
	FolderID       string
	FolderVersion  int
	Kind           types.ShareKind
	Index          types.IndexRef
	ExpiryDays     int
	OwnerUserID    string
	OwnerPublicKey []byte
	MasterKey      []byte
}

// CreateMemberShare makes a share whose master key is never embedded in
// the token. The owner receives their own wrapped copy and commitment so
// the share never becomes unrecoverable.
func (c *Control) CreateMemberShare(p CreateMemberShareParams) (*types.Share, []byte, error) {
	masterKey, err := masterKeyOrNew(p.MasterKey)
	if err != nil {
		return nil, nil, errs.Fatal("access.CreateMemberShare", err)
	}

	share, err := c.newShare(p.FolderID, p.FolderVersion, p.Kind, types.TierMember, p.Index, p.ExpiryDays)
	if err != nil {
		return nil, nil, err
	}
	share.MemberWrappedKeys = make(map[string][]byte)

	if err := c.store.CreateShare(share); err != nil {
		return nil, nil, errs.Transient("access.CreateMemberShare", err)
	}

	if _, err := c.GrantMember(share.ID, p.OwnerUserID, p.OwnerPublicKey, masterKey); err != nil {
		return nil, nil, err
	}
	return share, masterKey, nil
}

// CreatePassphraseShareParams configures a passphrase-tier share.
// MasterKey, when set, must be the key the folder's segments were
// already encrypted with.
type CreatePassphraseShareParams struct {
	FolderID      string
	FolderVersion int
	Kind          types.ShareKind
	Index         types.IndexRef
	ExpiryDays    int
	Passphrase    string
	MasterKey     []byte
}

// CreatePassphraseShare wraps the share's master key under a
// scrypt-derived key, and separately records a PBKDF2 verification hash
// on its own salt so verification never touches the wrap key material.
func (c *Control) CreatePassphraseShare(p CreatePassphraseShareParams) (*types.Share, []byte, error) {
	masterKey, err := masterKeyOrNew(p.MasterKey)
	if err != nil {
		return nil, nil, errs.Fatal("access.CreatePassphraseShare", err)
	}

	wrapSalt, err := crypto.NewSalt(16)
	if err != nil {
		return nil, nil, errs.Fatal("access.CreatePassphraseShare", err)
	}
	wrapKey, err := crypto.DeriveWrapKey(p.Passphrase, wrapSalt, crypto.DefaultScryptParams)
	if err != nil {
		return nil, nil, errs.Fatal("access.CreatePassphraseShare", err)
	}
	wrapped, err := crypto.Wrap(masterKey, wrapKey)
	if err != nil {
		return nil, nil, errs.Fatal("access.CreatePassphraseShare", err)
	}

	verifySalt, err := crypto.NewSalt(16)
	if err != nil {
		return nil, nil, errs.Fatal("access.CreatePassphraseShare", err)
	}
	verifyHash := crypto.VerificationHash(p.Passphrase, verifySalt, crypto.DefaultPBKDF2Iterations)

	share, err := c.newShare(p.FolderID, p.FolderVersion, p.Kind, types.TierPassphrase, p.Index, p.ExpiryDays)
	if err != nil {
		return nil, nil, err
	}
	share.WrapSalt = wrapSalt
	share.WrappedMasterKey = wrapped
	share.PassphraseSalt = verifySalt
	share.PassphraseHash = verifyHash

	if err := c.store.CreateShare(share); err != nil {
		return nil, nil, errs.Transient("access.CreatePassphraseShare", err)
	}
	return share, masterKey, nil
}

// masterKeyOrNew returns key unchanged if the caller already supplied
// one, otherwise mints a fresh one.
func masterKeyOrNew(key []byte) ([]byte, error) {
	if key != nil {
		return key, nil
	}
	return crypto.NewMasterKey()
}

func (c *Control) newShare(folderID string, folderVersion int, kind types.ShareKind, tier types.AccessTier, index types.IndexRef, expiryDays int) (*types.Share, error) {
	id, err := crypto.NewShareID()
	if err != nil {
		return nil, errs.Fatal("access.newShare", err)
	}
	share := &types.Share{
		ID: id, FolderID: folderID, FolderVersion: folderVersion,
		Kind: kind, Tier: tier, Index: index, CreatedAt: time.Now(),
	}
	if expiryDays > 0 {
		share.Expiry = time.Now().AddDate(0, 0, expiryDays)
	}
	return share, nil
}

// GrantMember wraps the share's master key for a new user and records
// their zero-knowledge commitment. masterKey must be the unwrapped key
// the caller already holds (typically the owner's own copy).
func (c *Control) GrantMember(shareID, userID string, userPublicKey []byte, masterKey []byte) (*types.MemberCommitment, error) {
	share, err := c.store.GetShare(shareID)
	if err != nil {
		return nil, errs.Transient("access.GrantMember", err)
	}
	if share.Tier != types.TierMember {
		return nil, errs.Validation("access.GrantMember", fmt.Errorf("share %s is not member-tier", shareID))
	}

	wrapKey := deriveUserWrapKey(userID, userPublicKey)
	wrapped, err := crypto.Wrap(masterKey, wrapKey)
	if err != nil {
		return nil, errs.Fatal("access.GrantMember", err)
	}

	commitment := &types.MemberCommitment{
		ShareID: shareID, UserID: userID,
		CommitmentHash: crypto.CommitmentHash(shareID, userID, userPublicKey),
		WrappedKey:     wrapped,
		Permissions:    []string{"read"},
		GrantedAt:      time.Now(),
	}
	if err := c.store.PutCommitment(commitment); err != nil {
		return nil, errs.Transient("access.GrantMember", err)
	}

	share.MemberWrappedKeys[userID] = wrapped
	if err := c.store.UpdateShare(share); err != nil {
		return nil, errs.Transient("access.GrantMember", err)
	}
	return commitment, nil
}

// RevokeMember removes a user's wrapped-key entry and marks their
// commitment revoked. It never touches other members' entries.
func (c *Control) RevokeMember(shareID, userID string) error {
	share, err := c.store.GetShare(shareID)
	if err != nil {
		return errs.Transient("access.RevokeMember", err)
	}
	commitment, err := c.store.GetCommitment(shareID, userID)
	if err != nil {
		return errs.Transient("access.RevokeMember", err)
	}

	commitment.RevokedAt = time.Now()
	if err := c.store.PutCommitment(commitment); err != nil {
		return errs.Transient("access.RevokeMember", err)
	}

	delete(share.MemberWrappedKeys, userID)
	if err := c.store.UpdateShare(share); err != nil {
		return errs.Transient("access.RevokeMember", err)
	}
	return nil
}

// VerifyOpen returns the embedded master key for an open-tier share.
func (c *Control) VerifyOpen(share *types.Share) ([]byte, error) {
	if err := checkLiveness(share); err != nil {
		return nil, err
	}
	if share.Tier != types.TierOpen {
		return nil, errs.Validation("access.VerifyOpen", fmt.Errorf("share %s is not open-tier", share.ID))
	}
	return share.WrappedMasterKey, nil
}

// VerifyMember unwraps a member's key after checking their commitment is
// live. Any failure (no commitment, revoked, unwrap failure) surfaces as
// the single "access denied" auth error — the caller must
// not be able to distinguish "wrong user" from "wrong key material".
func (c *Control) VerifyMember(share *types.Share, userID string, userPublicKey []byte) ([]byte, error) {
	if err := checkLiveness(share); err != nil {
		return nil, err
	}
	if share.Tier != types.TierMember {
		return nil, errs.Auth("access.VerifyMember", fmt.Errorf("access denied"))
	}

	commitment, err := c.store.GetCommitment(share.ID, userID)
	if err != nil || commitment.IsRevoked() {
		return nil, errs.Auth("access.VerifyMember", fmt.Errorf("access denied"))
	}
	want := crypto.CommitmentHash(share.ID, userID, userPublicKey)
	if subtle.ConstantTimeCompare([]byte(want), []byte(commitment.CommitmentHash)) != 1 {
		return nil, errs.Auth("access.VerifyMember", fmt.Errorf("access denied"))
	}

	wrapKey := deriveUserWrapKey(userID, userPublicKey)
	masterKey, err := crypto.Unwrap(commitment.WrappedKey, wrapKey)
	if err != nil {
		return nil, errs.Auth("access.VerifyMember", fmt.Errorf("access denied"))
	}
	return masterKey, nil
}

// VerifyPassphrase unwraps the master key for a passphrase-tier share.
// The wrap key is re-derived from the presented passphrase and used
// directly to attempt unwrap; success or failure of Unwrap is the only
// signal, so a wrong passphrase is indistinguishable from a wrong member
// key from the caller's point of view (both return the same auth error).
func (c *Control) VerifyPassphrase(share *types.Share, passphrase string) ([]byte, error) {
	if err := checkLiveness(share); err != nil {
		return nil, err
	}
	if share.Tier != types.TierPassphrase {
		return nil, errs.Auth("access.VerifyPassphrase", fmt.Errorf("access denied"))
	}

	wrapKey, err := crypto.DeriveWrapKey(passphrase, share.WrapSalt, crypto.DefaultScryptParams)
	if err != nil {
		return nil, errs.Fatal("access.VerifyPassphrase", err)
	}
	masterKey, err := crypto.Unwrap(share.WrappedMasterKey, wrapKey)
	if err != nil {
		return nil, errs.Auth("access.VerifyPassphrase", fmt.Errorf("access denied"))
	}
	return masterKey, nil
}

func checkLiveness(share *types.Share) error {
	if share.Revoked {
		return errs.Auth("access.checkLiveness", fmt.Errorf("access denied"))
	}
	if !share.Expiry.IsZero() && time.Now().After(share.Expiry) {
		return errs.Auth("access.checkLiveness", fmt.Errorf("access denied"))
	}
	return nil
}

// deriveUserWrapKey derives a per-user wrapping key. A real deployment
// wraps to the user's public key (asymmetric); this derives a symmetric
// key from their identifier and public key, matching the
// weaker default ("or their public key in a stronger deployment").
func deriveUserWrapKey(userID string, userPublicKey []byte) []byte {
	material := append([]byte(userID+":"), userPublicKey...)
	sum := crypto.HashHex(material)
	return []byte(sum)[:crypto.KeySize]
}

// Revoke marks a share as revoked; all VerifyX calls fail afterward.
func (c *Control) Revoke(shareID string) error {
	share, err := c.store.GetShare(shareID)
	if err != nil {
		return errs.Transient("access.Revoke", err)
	}
	share.Revoked = true
	if err := c.store.UpdateShare(share); err != nil {
		return errs.Transient("access.Revoke", err)
	}
	return nil
}
