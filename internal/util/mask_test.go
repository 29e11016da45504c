package util

import (
	"path/filepath"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Long secret", "secret-token-value", "secr...alue"},
		{"Nine characters", "123456789", "1234...6789"},
		{"Eight characters", "12345678", "12...78"},
		{"Five characters", "abcde", "ab...de"},
		{"Four characters", "abcd", "a...d"},
		{"Three characters", "abc", "a...c"},
		{"Two characters", "ab", "ab"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSecret(tt.input); got != tt.expected {
				t.Errorf("MaskSecret(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMaskAuthorizationHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Bearer", "Bearer rt-1234567890", "Bearer rt-1...7890"},
		{"Basic", "Basic dXNlcjpwYXNz", "Basic dXNl...YXNz"},
		{"No scheme", "tok-1234567890", "tok-...7890"},
		{"Surrounding spaces", "  Bearer rt-1234567890  ", "Bearer rt-1...7890"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskAuthorizationHeader(tt.input); got != tt.expected {
				t.Errorf("MaskAuthorizationHeader(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMaskSensitiveHeaderValue(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		expected string
	}{
		{"Authorization keeps scheme", "Authorization", "Bearer secret-token-value", "Bearer secr...alue"},
		{"Api key", "X-Api-Key", "ak-0011223344", "ak-0...3344"},
		{"Token header", "X-Refresh-Token", "rt-1234567890", "rt-1...7890"},
		{"Secret header", "Client-Secret", "verysecretvalue", "very...alue"},
		{"Case insensitive", "AUTHORIZATION", "Bearer secret-token-value", "Bearer secr...alue"},
		{"Plain header untouched", "Content-Type", "application/json", "application/json"},
		{"User agent untouched", "User-Agent", "restreamctl", "restreamctl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSensitiveHeaderValue(tt.key, tt.value); got != tt.expected {
				t.Errorf("MaskSensitiveHeaderValue(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.expected)
			}
		})
	}
}

func TestMaskTokenQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"Token only",
			"wss://chat.api.restream.io/ws?accessToken=tok-1234567890",
			"wss://chat.api.restream.io/ws?accessToken=tok-...7890",
		},
		{
			"Token followed by params",
			"wss://streaming.api.restream.io/ws?accessToken=tok-1234567890&foo=bar",
			"wss://streaming.api.restream.io/ws?accessToken=tok-...7890&foo=bar",
		},
		{
			"No token",
			"wss://chat.api.restream.io/ws?foo=bar",
			"wss://chat.api.restream.io/ws?foo=bar",
		},
		{
			"Short token stays short",
			"wss://chat.api.restream.io/ws?accessToken=ab&foo=bar",
			"wss://chat.api.restream.io/ws?accessToken=ab&foo=bar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskTokenQuery(tt.input); got != tt.expected {
				t.Errorf("MaskTokenQuery(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Bare tilde", "~", home},
		{"Tilde prefix", "~/tokens.json", filepath.Join(home, "tokens.json")},
		{"Nested", "~/.config/restreamctl/tokens.json", filepath.Join(home, ".config", "restreamctl", "tokens.json")},
		{"Absolute untouched", "/etc/restreamctl/tokens.json", "/etc/restreamctl/tokens.json"},
		{"Relative untouched", "state/tokens.json", "state/tokens.json"},
		{"Named user untouched", "~alice/tokens.json", "~alice/tokens.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandHome(tt.input); got != tt.expected {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
