// Package client implements the chat participant: directory access, the
// session event loop, and the send/receive API on top of it.
package client

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"cryptochat/internal/identity"
	"cryptochat/internal/transport"
)

// Directory talks to the relay's user directory API: account registration and
// login, the online-user snapshot, and public-key lookup.
type Directory struct {
	base string
	http *http.Client
}

func NewDirectory(base string) *Directory {
	return &Directory{base: base, http: http.DefaultClient}
}

// Register creates an account and returns the server-issued public key PEM.
func (d *Directory) Register(username, password string) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := d.post("/api/register", map[string]string{"username": username, "password": password}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("register %s: %s", username, resp.Message)
	}
	return nil
}

// Login authenticates and rebuilds the local identity from the returned key
// material.
func (d *Directory) Login(username, password string) (*identity.Identity, error) {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		User    struct {
			Username   string `json:"username"`
			PublicKey  string `json:"public_key"`
			PrivateKey string `json:"private_key"`
		} `json:"user"`
	}
	if err := d.post("/api/login", map[string]string{"username": username, "password": password}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("login %s: %s", username, resp.Message)
	}
	return identity.FromPEM(resp.User.Username, []byte(resp.User.PrivateKey), []byte(resp.User.PublicKey))
}

// Logout clears the account's online flag.
func (d *Directory) Logout(username string) error {
	return d.post("/api/logout", map[string]string{"username": username}, nil)
}

// OnlineUsers returns the current online snapshot for presence seeding.
func (d *Directory) OnlineUsers() ([]string, error) {
	var resp struct {
		Users []string `json:"users"`
	}
	if err := d.getJSON("/api/users/online", &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// History returns a chat's stored envelopes in send order.
func (d *Directory) History(chatID string) ([]transport.MessageEnvelope, error) {
	var resp struct {
		Messages []transport.MessageEnvelope `json:"messages"`
	}
	if err := d.getJSON("/api/chats/"+url.PathEscape(chatID)+"/messages", &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// PublicKey resolves a username's current public key from its directory JWK.
func (d *Directory) PublicKey(username string) (*rsa.PublicKey, error) {
	var resp struct {
		PublicKey json.RawMessage `json:"public_key"`
	}
	if err := d.getJSON("/api/users/public-key/"+url.PathEscape(username), &resp); err != nil {
		return nil, err
	}
	return identity.PublicKeyFromJWK(resp.PublicKey)
}

func (d *Directory) post(path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return fmt.Errorf("encode request %s: %w", path, err)
	}
	resp, err := d.http.Post(d.base+path, "application/json", buf)
	if err != nil {
		return fmt.Errorf("directory post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response %s: %w", path, err)
		}
	}
	return nil
}

func (d *Directory) getJSON(path string, out any) error {
	resp, err := d.http.Get(d.base + path)
	if err != nil {
		return fmt.Errorf("directory get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("directory get %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
