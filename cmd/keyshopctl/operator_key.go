package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/keyshop-backend/pkg/security"
)

func operatorKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator-key",
		Short: "Generate or hash admin operator keys",
	}
	cmd.AddCommand(operatorKeyGenerateCmd())
	cmd.AddCommand(operatorKeyHashCmd())
	return cmd
}

func operatorKeyGenerateCmd() *cobra.Command {
	var (
		length   int
		memoryKB int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a random operator key and its argon2id hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := security.GenerateOperatorKey(length)
			if err != nil {
				return err
			}
			hash, err := security.HashOperatorKey(key, security.DefaultArgonParams(memoryKB))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"key":  key,
				"hash": hash,
			})
		},
	}
	cmd.Flags().IntVar(&length, "length", 32, "key length")
	cmd.Flags().IntVar(&memoryKB, "memory-kb", 64*1024, "argon2id memory in KiB")
	return cmd
}

func operatorKeyHashCmd() *cobra.Command {
	var memoryKB int
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash an operator key read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key: %w", err)
			}
			key := strings.TrimSpace(line)
			if key == "" {
				return errors.New("empty key")
			}
			hash, err := security.HashOperatorKey(key, security.DefaultArgonParams(memoryKB))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&memoryKB, "memory-kb", 64*1024, "argon2id memory in KiB")
	return cmd
}
