package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	sshpkg "golang.org/x/crypto/ssh"
)

const exampleProblem = `# CoreProbe problems
#
# Each problem names a universe of elements and a monotone predicate:
# once the predicate holds for a subset it holds for every superset.
# coreprobe run reports every minimal subset on which it holds.
problems:
  - name: example
    description: Holds when inline is paired with an optimization level
    universe: [inline, O2, O3, lto, debug]
    strategy: punch
    render: '{{join . ","}}'
    predicate:
      kind: starlark
      script: |
        def check(subset):
            return "inline" in subset and ("O2" in subset or "O3" in subset)
`

func newInitCommand() *cobra.Command {
	var (
		sshKey string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a CoreProbe workspace",
		Long: `Initialize a workspace with an example problem file and the run history
database.

With --ssh-key an ed25519 keypair is generated for ssh predicates; add
the public key to the remote host's authorized_keys.`,
		Example: `  # Initialize in the current directory
  coreprobe init

  # Also generate a key for ssh predicates
  coreprobe init --ssh-key ./keys/coreprobe-ed25519`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			log := logger()
			log.Info().
				Strs("files", problemFiles).
				Str("db", dbPath).
				Msg("Initializing workspace")

			// Step 1: Write the example problem file
			problemPath := problemFiles[0]
			if filepath.Ext(problemPath) == "" {
				problemPath = filepath.Join(problemPath, "coreprobe.yaml")
			}
			if _, err := os.Stat(problemPath); err == nil && !force {
				fmt.Fprintf(out, "✓ Problem file already exists: %s\n", problemPath)
			} else {
				if err := os.MkdirAll(filepath.Dir(problemPath), 0755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(problemPath), err)
				}
				if err := os.WriteFile(problemPath, []byte(exampleProblem), 0644); err != nil {
					return fmt.Errorf("failed to write problem file: %w", err)
				}
				fmt.Fprintf(out, "✓ Created problem file: %s\n", problemPath)
			}

			// Step 2: Initialize the history database
			if dbPath != "" {
				if dir := filepath.Dir(dbPath); dir != "." {
					if err := os.MkdirAll(dir, 0700); err != nil {
						return fmt.Errorf("failed to create directory %s: %w", dir, err)
					}
				}
				store, err := openStore(ctx)
				if err != nil {
					return err
				}
				if err := store.Close(); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Initialized history database: %s\n", dbPath)
			}

			// Step 3: Generate an SSH key for ssh predicates
			if sshKey != "" {
				if err := writeSSHKey(sshKey); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ SSH keypair: %s\n", sshKey)
			}

			fmt.Fprintf(out, "\nNext steps:\n")
			fmt.Fprintf(out, "  1. Edit the problem file:\n")
			fmt.Fprintf(out, "     %s\n\n", problemPath)
			fmt.Fprintf(out, "  2. Enumerate its cores:\n")
			fmt.Fprintf(out, "     coreprobe run -f %s\n\n", problemPath)

			return nil
		},
	}

	cmd.Flags().StringVar(&sshKey, "ssh-key", "", "generate an ed25519 keypair at this path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing problem file")

	return cmd
}

// writeSSHKey generates an OpenSSH ed25519 keypair at path and path.pub,
// keeping an existing one.
func writeSSHKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	// Marshal private key
	privKeyBytes, err := sshpkg.MarshalPrivateKey(privKey, "coreprobe")
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(privKeyBytes), 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	// Marshal public key
	sshPubKey, err := sshpkg.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("failed to create SSH public key: %w", err)
	}
	if err := os.WriteFile(path+".pub", sshpkg.MarshalAuthorizedKey(sshPubKey), 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}
