package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "manage member-tier share grants",
}

func init() {
	memberCmd.AddCommand(memberAddCmd, memberRemoveCmd)
}

var memberAddCmd = &cobra.Command{
	Use:   "add <share-id> <user-id> <user-public-key-hex>",
	Short: "add_member: grant a user access to a member-tier share",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		shareID, userID := args[0], args[1]
		pubKey, err := hex.DecodeString(args[2])
		if err != nil {
			return fmt.Errorf("decoding user public key: %w", err)
		}

		n, err := openNode()
		if err != nil {
			return err
		}
		defer n.Close()

		share, err := n.store.GetShare(shareID)
		if err != nil {
			return err
		}
		folder, err := n.store.GetFolder(share.FolderID)
		if err != nil {
			return err
		}
		commitment, err := n.access.GrantMember(shareID, userID, pubKey, folder.ContentKey())
		if err != nil {
			return err
		}
		fmt.Printf("granted %s on share %s (commitment %s)\n", userID, shareID, commitment.CommitmentHash)
		return nil
	},
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove <share-id> <user-id>",
	Short: "remove_member: revoke a user's grant on a member-tier share",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := openNode()
		if err != nil {
			return err
		}
		defer n.Close()

		if err := n.access.RevokeMember(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("removed %s from share %s\n", args[1], args[0])
		return nil
	},
}
