package core

import (
	"fmt"
	"time"

	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// AddFolderParams configures add_folder.
type AddFolderParams struct {
	Path            string
	DisplayName     string
	TargetGroup     string
	RedundancyLevel int
}

// AddFolder registers a new locally indexed directory tree: it mints the
// folder's signing keypair (used later to obfuscate article subjects) and
// its content-encryption key (used by every segment this folder ever
// produces), then persists the folder row. It does not walk the
// filesystem; call the indexer afterward to populate File rows.
func AddFolder(store storage.Store, newID func() (string, error), p AddFolderParams) (*types.Folder, error) {
	id, err := newID()
	if err != nil {
		return nil, errs.Fatal("core.AddFolder", err)
	}

	pub, seed, err := crypto.NewSigningKeypair()
	if err != nil {
		return nil, errs.Fatal("core.AddFolder", err)
	}
	contentKey, err := crypto.NewMasterKey()
	if err != nil {
		return nil, errs.Fatal("core.AddFolder", err)
	}

	redundancy := p.RedundancyLevel
	if redundancy < 1 {
		redundancy = 1
	}

	folder := &types.Folder{
		ID: id, Path: p.Path, DisplayName: p.DisplayName,
		SigningPublicKey: pub, EncryptionEnabled: true,
		RedundancyLevel: redundancy, TargetGroup: p.TargetGroup,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	folder.SetSigningSeed(seed)
	folder.SetContentKey(contentKey)

	if existing, err := store.GetFolderByPath(p.Path); err == nil && existing != nil {
		return nil, errs.Validation("core.AddFolder", fmt.Errorf("path %s is already tracked as folder %s", p.Path, existing.ID))
	}
	if err := store.CreateFolder(folder); err != nil {
		return nil, errs.Transient("core.AddFolder", err)
	}
	return folder, nil
}
