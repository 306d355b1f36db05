package container

import (
	"crypto/rand"
	"fmt"
	"io"
	"path/filepath"
)

const (
	charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// bytes at or above are rejected to keep the draw uniform
	charsetCutoff = 256 - 256%len(charset)

	idPrefix     = "cunrc."
	idLength     = 12
	holderPrefix = "oldroot."
	holderLength = 6
	rootBase     = "/tmp"
)

var (
	adjectives = []string{
		"blue", "red", "green", "yellow", "big", "small", "tall", "thin",
		"round", "square", "triangular", "weird", "noisy", "silent", "soft", "irregular",
	}
	nouns = []string{
		"cat", "world", "coffee", "girl", "man", "book", "pinguin", "moon",
	}
)

// randomSource is replaced in tests
var randomSource io.Reader = rand.Reader

// randomString returns n characters drawn uniformly from charset
func randomString(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(randomSource, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= charsetCutoff {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func randomIndex(n int) (int, error) {
	var b [1]byte
	cutoff := 256 - 256%n
	for {
		if _, err := io.ReadFull(randomSource, b[:]); err != nil {
			return 0, err
		}
		if int(b[0]) < cutoff {
			return int(b[0]) % n, nil
		}
	}
}

// GenerateHostname returns "<adjective>-<noun>-<0..255>"
func GenerateHostname() (string, error) {
	a, err := randomIndex(len(adjectives))
	if err != nil {
		return "", err
	}
	n, err := randomIndex(len(nouns))
	if err != nil {
		return "", err
	}
	var num [1]byte
	if _, err := io.ReadFull(randomSource, num[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%d", adjectives[a], nouns[n], num[0]), nil
}

// GenerateContainerID returns "cunrc.<12 alphanumerics>"
func GenerateContainerID() (string, error) {
	s, err := randomString(idLength)
	if err != nil {
		return "", err
	}
	return idPrefix + s, nil
}

// GenerateRootPath returns "/tmp/cunrc.<12 alphanumerics>", drawn
// independently of the container id
func GenerateRootPath() (string, error) {
	s, err := randomString(idLength)
	if err != nil {
		return "", err
	}
	return filepath.Join(rootBase, idPrefix+s), nil
}

// generateHolder names the directory receiving the old root during pivot_root
func generateHolder() (string, error) {
	s, err := randomString(holderLength)
	if err != nil {
		return "", err
	}
	return holderPrefix + s, nil
}
