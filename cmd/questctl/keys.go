package main

import (
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"questvault/cmd/internal/passphrase"
	"questvault/crypto"
	"questvault/native/endless"
	"questvault/services/questd"
)

const defaultPassEnv = "QUESTCTL_KEY_PASS"

func tokenCommand() *cobra.Command {
	var (
		secretEnv string
		issuer    string
		audience  string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Sign a bearer token for subject with the shared secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := crypto.ParseAddress(args[0])
			if err != nil {
				return err
			}
			secret := strings.TrimSpace(os.Getenv(secretEnv))
			if secret == "" {
				return fmt.Errorf("%s is not set", secretEnv)
			}
			token, err := questd.IssueToken(questd.AuthConfig{
				HMACSecret: []byte(secret),
				Issuer:     issuer,
				Audience:   audience,
			}, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secretEnv, "secret-env", "QUESTD_JWT_SECRET", "environment variable holding the HMAC secret")
	cmd.Flags().StringVar(&issuer, "issuer", "questvault", "token issuer")
	cmd.Flags().StringVar(&audience, "audience", "", "token audience")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func keygenCommand() *cobra.Command {
	var (
		out     string
		passEnv string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key into an encrypted keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", out)
			}
			pass, err := passphrase.NewSource(passEnv, out).WithConfirmation().Get()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if err := crypto.SaveToKeystore(out, key, pass); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address %s\nkeystore %s\n", key.PubKey().Address(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "admin.keystore", "keystore output path")
	cmd.Flags().StringVar(&passEnv, "pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keystore")
	return cmd
}

type domainFlags struct {
	name      string
	version   string
	chainID   uint64
	verifying string
}

func (d *domainFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.name, "domain-name", "QuestVault Endless Mint", "signing domain name")
	cmd.Flags().StringVar(&d.version, "domain-version", "1", "signing domain version")
	cmd.Flags().Uint64Var(&d.chainID, "chain-id", 1, "signing domain chain id")
	cmd.Flags().StringVar(&d.verifying, "verifying-contract", "", "engine address the signature is bound to")
}

func (d *domainFlags) domain() (endless.Domain, error) {
	verifying, err := crypto.ParseAddress(d.verifying)
	if err != nil {
		return endless.Domain{}, fmt.Errorf("verifying-contract: %w", err)
	}
	return endless.Domain{
		Name:              d.name,
		Version:           d.version,
		ChainID:           new(big.Int).SetUint64(d.chainID),
		VerifyingContract: verifying,
	}, nil
}

func endlessCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endless",
		Short: "Admin-signed endless quest mints",
	}

	var (
		keystorePath string
		passEnv      string
		domain       domainFlags
	)
	sign := &cobra.Command{
		Use:   "sign <quest> <participant>",
		Short: "Sign a mint request with the admin keystore",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			participant, err := crypto.ParseAddress(args[1])
			if err != nil {
				return err
			}
			dom, err := domain.domain()
			if err != nil {
				return err
			}
			pass, err := passphrase.NewSource(passEnv, keystorePath).Get()
			if err != nil {
				return err
			}
			key, err := crypto.LoadFromKeystore(keystorePath, pass)
			if err != nil {
				return err
			}
			sig, err := endless.Sign(key.PrivateKey, dom, id, participant)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(sig))
			return nil
		},
	}
	sign.Flags().StringVar(&keystorePath, "keystore", "admin.keystore", "admin keystore path")
	sign.Flags().StringVar(&passEnv, "pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	domain.register(sign)

	redeem := &cobra.Command{
		Use:   "redeem <quest> <signature>",
		Short: "Redeem an admin signature as the token holder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			return send(cmd, flags, http.MethodPost, fmt.Sprintf("/v1/quests/%d/endless/redeem", id), map[string]string{"signature": args[1]})
		},
	}

	cmd.AddCommand(sign, redeem)
	return cmd
}
