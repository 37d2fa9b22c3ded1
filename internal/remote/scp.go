// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/zeytinlab/zeytinvault/internal/config"
	"github.com/zeytinlab/zeytinvault/internal/logging"
)

// SCPTarget uploads archives over SSH using the scp sink protocol. The
// remote side only needs a stock scp binary.
type SCPTarget struct {
	host       string
	user       string
	remotePath string
	auth       []ssh.AuthMethod

	// dial is swappable for tests.
	dial func(network, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error)
}

func newSCPTarget(cfg config.RemoteConfig) (*SCPTarget, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.RemotePath == "" {
		return nil, fmt.Errorf("secure-copy replication requires host, user, and remote path")
	}

	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		keyData, err := os.ReadFile(cfg.KeyFile) //nolint:gosec // G304: operator-configured key path
		if err != nil {
			return nil, fmt.Errorf("reading SSH key %s: %w", cfg.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parsing SSH key %s: %w", cfg.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("secure-copy replication requires a key file or password")
	}

	return &SCPTarget{
		host:       cfg.Host,
		user:       cfg.User,
		remotePath: cfg.RemotePath,
		auth:       auth,
		dial:       ssh.Dial,
	}, nil
}

// Name implements Target.
func (t *SCPTarget) Name() string {
	return fmt.Sprintf("scp://%s@%s:%s", t.user, t.host, t.remotePath)
}

// Upload implements Target.
func (t *SCPTarget) Upload(ctx context.Context, localPath string) error {
	addr := t.host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	clientCfg := &ssh.ClientConfig{
		User: t.user,
		Auth: t.auth,
		// Backup hosts are provisioned alongside the deployment; host key
		// pinning is tracked separately.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106
		Timeout:         30 * time.Second,
	}

	client, err := t.dial("tcp", addr, clientCfg)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer client.Close() //nolint:errcheck // Best effort cleanup

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("opening SSH session: %w", err)
	}
	defer session.Close() //nolint:errcheck // Best effort cleanup

	done := make(chan error, 1)
	go func() {
		done <- t.send(session, localPath)
	}()

	select {
	case <-ctx.Done():
		// Tears down the in-flight transfer.
		_ = session.Close()
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return err
		}
	}

	logging.Info().Str("target", t.Name()).Str("archive", filepath.Base(localPath)).Msg("archive replicated")
	return nil
}

// send drives one file through the scp sink protocol: a C header with mode
// and size, the file body, and a trailing zero byte, each acknowledged by
// the remote sink.
func (t *SCPTarget) send(session *ssh.Session, localPath string) error {
	file, err := os.Open(localPath) //nolint:gosec // G304: path is a finished archive in the backup directory
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stating archive: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening session stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening session stdout: %w", err)
	}

	remoteDir := path.Join(t.remotePath) + "/"
	if err := session.Start("scp -qt " + shellQuote(remoteDir)); err != nil {
		return fmt.Errorf("starting remote scp sink: %w", err)
	}

	acks := bufio.NewReader(stdout)
	if err := readAck(acks); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(stdin, "C0644 %d %s\n", info.Size(), filepath.Base(localPath)); err != nil {
		return fmt.Errorf("writing transfer header: %w", err)
	}
	if err := readAck(acks); err != nil {
		return err
	}
	if _, err := io.Copy(stdin, file); err != nil {
		return fmt.Errorf("streaming archive: %w", err)
	}
	if _, err := stdin.Write([]byte{0}); err != nil {
		return fmt.Errorf("finishing transfer: %w", err)
	}
	if err := readAck(acks); err != nil {
		return err
	}

	// Close signals EOF to the sink.
	if err := stdin.Close(); err != nil {
		return fmt.Errorf("closing transfer stream: %w", err)
	}
	if err := session.Wait(); err != nil {
		return fmt.Errorf("remote scp sink: %w", err)
	}
	return nil
}

// readAck consumes one sink acknowledgment. A nonzero status byte is
// followed by a textual error line from the remote side.
func readAck(r *bufio.Reader) error {
	status, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading remote acknowledgment: %w", err)
	}
	if status == 0 {
		return nil
	}
	msg, _ := r.ReadString('\n')
	return fmt.Errorf("remote scp error (status %d): %s", status, strings.TrimSpace(msg))
}

// shellQuote single-quotes s for the remote shell so paths with spaces or
// metacharacters survive the command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
