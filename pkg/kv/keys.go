package kv

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oneconcern/vkv/pkg/status"
)

const sep = "/"

// nativeKey translates a logical key into the absolute node path used by the engine
func nativeKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return sep + key, nil
}

// nativePrefix translates a logical listing prefix. The empty prefix selects the whole store.
func nativePrefix(prefix string) (string, error) {
	if prefix == "" {
		return sep, nil
	}
	if !strings.HasSuffix(prefix, sep) {
		return "", status.ErrInvalidKey.Wrapf("prefix %q must end with %q", prefix, sep)
	}
	if err := validateKey(strings.TrimSuffix(prefix, sep)); err != nil {
		return "", err
	}
	return sep + prefix, nil
}

// logicalKey translates back a native node path
func logicalKey(native string) string {
	return strings.TrimPrefix(native, sep)
}

func validateKey(key string) error {
	switch {
	case key == "":
		return status.ErrInvalidKey.Wrapf("key is empty")
	case !utf8.ValidString(key):
		return status.ErrInvalidKey.Wrapf("key %q is not valid UTF-8", key)
	case strings.HasPrefix(key, sep), strings.HasSuffix(key, sep):
		return status.ErrInvalidKey.Wrapf("key %q must not start or end with %q", key, sep)
	}

	for _, segment := range strings.Split(key, sep) {
		switch segment {
		case "", ".", "..":
			return status.ErrInvalidKey.Wrapf("key %q has an invalid segment %q", key, segment)
		}
	}
	for _, r := range key {
		if r == '\\' || unicode.IsControl(r) {
			return status.ErrInvalidKey.Wrapf("key %q contains a forbidden character %q", key, r)
		}
	}
	return nil
}
