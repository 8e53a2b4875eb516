package core

import (
	"context"
	"fmt"

	"driftshare.io/driftshare/pkg/access"
	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	netpkg "driftshare.io/driftshare/pkg/net"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// PublishParams configures publish_folder: the folder's current version
// is published under one access tier, building and posting the index
// manifest and minting a share.
type PublishParams struct {
	FolderID       string
	Tier           types.AccessTier
	Kind           types.ShareKind
	ExpiryDays     int
	Passphrase     string // tier = passphrase
	OwnerUserID    string // tier = member
	OwnerPublicKey []byte
}

// Publisher builds and posts a folder version's index manifest, then mints
// the share that points recipients at it.
type Publisher struct {
	store    storage.Store
	net      *netpkg.Pool
	access   *access.Control
	retry    netpkg.RetryPolicy
	compress bool // must match the Segmenter.Config.Compress used to produce this folder's segments
}

func NewPublisher(store storage.Store, net *netpkg.Pool, accessCtl *access.Control) *Publisher {
	return &Publisher{store: store, net: net, access: accessCtl, retry: netpkg.DefaultRetryPolicy(), compress: true}
}

// Publish implements publish_folder. It assumes the folder has already
// been indexed, segmented, and uploaded (TotalSegments == UploadedSegments
// for every live file); Publish itself only builds and posts the manifest.
func (p *Publisher) Publish(ctx context.Context, params PublishParams) (*types.Share, error) {
	folder, err := p.store.GetFolder(params.FolderID)
	if err != nil {
		return nil, errs.Transient("core.Publish", err)
	}
	if folder.ContentKey() == nil {
		return nil, errs.Validation("core.Publish", fmt.Errorf("folder %s has no content key; only folders created by AddFolder carry one", folder.ID))
	}

	manifest, err := buildManifest(p.store, folder.ID, folder.Version, p.compress)
	if err != nil {
		return nil, err
	}

	var (
		share     *types.Share
		masterKey []byte
	)
	contentKey := folder.ContentKey()
	switch params.Tier {
	case types.TierOpen:
		share, masterKey, err = p.access.CreateOpenShare(access.CreateOpenShareParams{
			FolderID: folder.ID, FolderVersion: folder.Version, Kind: params.Kind, ExpiryDays: params.ExpiryDays,
			MasterKey: contentKey,
		})
	case types.TierMember:
		share, masterKey, err = p.access.CreateMemberShare(access.CreateMemberShareParams{
			FolderID: folder.ID, FolderVersion: folder.Version, Kind: params.Kind, ExpiryDays: params.ExpiryDays,
			OwnerUserID: params.OwnerUserID, OwnerPublicKey: params.OwnerPublicKey, MasterKey: contentKey,
		})
	case types.TierPassphrase:
		share, masterKey, err = p.access.CreatePassphraseShare(access.CreatePassphraseShareParams{
			FolderID: folder.ID, FolderVersion: folder.Version, Kind: params.Kind, ExpiryDays: params.ExpiryDays,
			Passphrase: params.Passphrase, MasterKey: contentKey,
		})
	default:
		return nil, errs.Validation("core.Publish", fmt.Errorf("unknown access tier %q", params.Tier))
	}
	if err != nil {
		return nil, err
	}

	articles, err := encodeManifestArticles(manifest, masterKey, []byte(share.ID))
	if err != nil {
		return nil, err
	}

	messageIDs := make([]string, len(articles))
	for i, body := range articles {
		subject := crypto.ObfuscateSubject(folder.SigningSeed(), share.ID, i, 32)
		messageID, _, err := p.net.PostArticle(ctx, p.retry, "", subject, []byte(body), folder.TargetGroup)
		if err != nil {
			return nil, errs.Transient("core.Publish", fmt.Errorf("posting index article %d: %w", i, err))
		}
		messageIDs[i] = messageID
	}

	share.Index = types.IndexRef{MessageIDs: messageIDs, Group: folder.TargetGroup}
	if err := p.store.UpdateShare(share); err != nil {
		return nil, errs.Transient("core.Publish", err)
	}
	return share, nil
}
