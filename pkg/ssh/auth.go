package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

var defaultKeyPaths = []string{
	"~/.ssh/id_ed25519",
	"~/.ssh/id_ecdsa",
	"~/.ssh/id_rsa",
}

// authMethods 按 agent、私钥文件的顺序收集认证方式
// 与 BatchMode=yes 一致，不支持密码和交互式认证
func authMethods(opts Options) ([]ssh.AuthMethod, func(), error) {
	var methods []ssh.AuthMethod
	cleanup := func() {}

	if opts.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				return nil, cleanup, fmt.Errorf("connect ssh-agent: %w", err)
			}
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			cleanup = func() { conn.Close() }
		}
	}

	paths := opts.KeyPaths
	explicit := len(paths) > 0
	if !explicit {
		paths = defaultKeyPaths
	}
	var signers []ssh.Signer
	for _, p := range paths {
		signer, err := loadKey(p)
		if err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				continue
			}
			cleanup()
			return nil, func() {}, err
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		cleanup()
		return nil, func() {}, errors.New("no ssh-agent or private key available")
	}
	return methods, cleanup, nil
}

func loadKey(path string) (ssh.Signer, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	keyData, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
	}
	return signer, nil
}
