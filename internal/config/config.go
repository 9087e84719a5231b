/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads bcproxy's single-section gcfg configuration
// file, with optional directory-of-overlays support, the same two
// primitives the teacher's ingest/config package provides
// (LoadConfigFile/LoadConfigOverlays) but mapped onto one flat Global
// section instead of a tree of named listeners.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gravwell/gcfg"
)

// maxConfigSize bounds how much a config file (or one overlay file)
// will be read into memory.
const maxConfigSize int64 = 2 * 1024 * 1024

const confExt = ".conf"

// Scheme identifies the transport used to reach the upstream MUD
// server, parsed off the front of Upstream-Address.
type Scheme int

const (
	SchemeTCP Scheme = iota
	SchemeTLS
)

func (s Scheme) String() string {
	if s == SchemeTLS {
		return "tls"
	}
	return "tcp"
}

// defaultActivation is the literal 6-byte BC activation line: ESC 'b'
// 'c' SP '1' LF.
var defaultActivation = []byte{0x1b, 0x62, 0x63, 0x20, 0x31, 0x0a}

const (
	defaultMaxTagDepth = 32
	defaultMaxTagBytes = 1 << 20
	defaultLogLevel    = "INFO"
)

// cfgReadType is what gcfg actually unmarshals into; kept separate
// from cfgType so field renames/derivations (scheme splitting, the
// activation-string hex decode) don't leak into the gcfg tags.
type cfgReadType struct {
	Global global
}

type global struct {
	Listen_Address       string
	Upstream_Address     string
	Insecure_Skip_Verify bool
	Upstream_Server_Name string
	Activation_String    string
	Persistence_DSN      string
	Log_File             string
	Log_Level            string
	Max_Tag_Depth        int
	Max_Tag_Bytes        int
}

// Config is bcproxy's resolved configuration: the Global section plus
// the derived fields (upstream scheme/host split, decoded activation
// line, defaulted numeric knobs).
type Config struct {
	ListenAddress      string
	UpstreamScheme     Scheme
	UpstreamAddress    string // host:port, scheme stripped
	InsecureSkipVerify bool
	UpstreamServerName string
	Activation         []byte
	PersistenceDSN     string
	LogFile            string
	LogLevel           string
	MaxTagDepth        int
	MaxTagBytes        int
}

// Load reads path, then applies every ".conf" file found in
// overlayDir (if it exists), and validates the result. overlayDir may
// be empty to skip overlay loading entirely.
func Load(path, overlayDir string) (*Config, error) {
	var cr cfgReadType
	if err := loadConfigFile(&cr, path); err != nil {
		return nil, err
	}
	if err := loadConfigOverlays(&cr, overlayDir); err != nil {
		return nil, err
	}
	return resolve(cr.Global)
}

// loadConfigFile reads p and merges it into v via gcfg, refusing files
// larger than maxConfigSize.
func loadConfigFile(v interface{}, p string) error {
	fin, err := os.Open(p)
	if err != nil {
		return err
	}
	defer fin.Close()
	fi, err := fin.Stat()
	if err != nil {
		return err
	}
	if fi.Size() > maxConfigSize {
		return fmt.Errorf("config file %s is too large", p)
	}
	bb := bytes.NewBuffer(nil)
	if _, err := io.Copy(bb, fin); err != nil {
		return err
	}
	return gcfg.ReadStringInto(v, bb.String())
}

// loadConfigOverlays applies every "*.conf" file in pth, in directory
// order, on top of v. A missing directory is not an error; anything
// else non-directory at pth is.
func loadConfigOverlays(v interface{}, pth string) error {
	if pth == "" {
		return nil
	}
	fi, err := os.Stat(pth)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("overlay path %s is not a directory", pth)
	}
	dents, err := os.ReadDir(pth)
	if err != nil {
		return err
	}
	for _, dent := range dents {
		if !dent.Type().IsRegular() || filepath.Ext(dent.Name()) != confExt {
			continue
		}
		p := filepath.Join(pth, dent.Name())
		if err := loadConfigFile(v, p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadBytes parses b directly, bypassing the filesystem; used by
// tests.
func LoadBytes(b []byte) (*Config, error) {
	var cr cfgReadType
	if err := gcfg.ReadStringInto(&cr, string(b)); err != nil {
		return nil, err
	}
	return resolve(cr.Global)
}

func resolve(g global) (*Config, error) {
	scheme, hostport, err := translateScheme(g.Upstream_Address)
	if err != nil {
		return nil, err
	}
	c := &Config{
		ListenAddress:      g.Listen_Address,
		UpstreamScheme:     scheme,
		UpstreamAddress:    hostport,
		InsecureSkipVerify: g.Insecure_Skip_Verify,
		UpstreamServerName: g.Upstream_Server_Name,
		PersistenceDSN:     g.Persistence_DSN,
		LogFile:            g.Log_File,
		LogLevel:           g.Log_Level,
		MaxTagDepth:        g.Max_Tag_Depth,
		MaxTagBytes:        g.Max_Tag_Bytes,
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.MaxTagDepth <= 0 {
		c.MaxTagDepth = defaultMaxTagDepth
	}
	if c.MaxTagBytes <= 0 {
		c.MaxTagBytes = defaultMaxTagBytes
	}
	if g.Activation_String == "" {
		c.Activation = defaultActivation
	} else {
		act, err := hex.DecodeString(g.Activation_String)
		if err != nil {
			return nil, fmt.Errorf("invalid Activation-String: %w", err)
		}
		c.Activation = act
	}
	if err := verify(c); err != nil {
		return nil, err
	}
	return c, nil
}

func verify(c *Config) error {
	if c.ListenAddress == "" {
		return errors.New("no Listen-Address provided")
	}
	if c.UpstreamAddress == "" {
		return errors.New("no Upstream-Address provided")
	}
	if len(c.Activation) == 0 {
		return errors.New("empty activation line")
	}
	return nil
}

// translateScheme splits a tcp:// or tls:// prefix off bstr, the same
// way the teacher's translateBindType splits tcp/udp/tcp6/udp6/tls,
// trimmed to the two schemes bcproxy's upstream dial actually
// supports.
func translateScheme(bstr string) (Scheme, string, error) {
	bits := strings.SplitN(bstr, "://", 2)
	if len(bits) != 2 {
		return SchemeTCP, bstr, nil
	}
	switch strings.ToLower(bits[0]) {
	case "tcp":
		return SchemeTCP, bits[1], nil
	case "tls":
		return SchemeTLS, bits[1], nil
	}
	return 0, "", fmt.Errorf("invalid upstream scheme %q", bits[0])
}
