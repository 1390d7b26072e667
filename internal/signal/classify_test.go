package signal

import (
	"slices"
	"testing"
)

func TestClassifyURL(t *testing.T) {
	cats := ClassifyString("https://api.example.com/oauth/accessToken")
	if !slices.Contains(cats, CatURL) {
		t.Errorf("expected url category, got %v", cats)
	}
	if !slices.Contains(cats, CatAuth) {
		t.Errorf("expected auth category for oauth/accessToken, got %v", cats)
	}
}

func TestClassifyCrypto(t *testing.T) {
	for _, s := range []string{
		"AES/CBC/PKCS7PADDING", "sha256", "HMAC-SHA1", "encrypt",
		"xor cipher", "XXTEA key", "Ciphertext:", "SALT", "rsa_public_key",
	} {
		if cats := ClassifyString(s); !slices.Contains(cats, CatEncryption) {
			t.Errorf("expected crypto category for %q, got %v", s, cats)
		}
	}
}

func TestClassifyCryptoFalsePositives(t *testing.T) {
	for _, s := range []string{"traversal", "instead", "setmetatable", "__index"} {
		if cats := ClassifyString(s); slices.Contains(cats, CatEncryption) {
			t.Errorf("should NOT be crypto: %q, got %v", s, cats)
		}
	}
}

func TestClassifyAuth(t *testing.T) {
	for _, s := range []string{"password", "Bearer token", "jwt", "apikey", "Authorization"} {
		if cats := ClassifyString(s); !slices.Contains(cats, CatAuth) {
			t.Errorf("expected auth category for %q, got %v", s, cats)
		}
	}
	for _, s := range []string{"showPasswordField", "tokenizer"} {
		if cats := ClassifyString(s); slices.Contains(cats, CatAuth) {
			t.Errorf("should NOT be auth: %q, got %v", s, cats)
		}
	}
}

func TestClassifyMisc(t *testing.T) {
	tests := []struct {
		value string
		cat   string
	}{
		{"GET", CatNet},
		{"socket connection", CatNet},
		{"192.168.1.1:8080", CatHost},
		{"config.json", CatFileExt},
		{"plugins/extra.luac", CatFileExt},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/==", CatBase64Key},
		{"collect_data", CatDataCollect},
		{"seed_phrase", CatBlockchain},
		{"jackpot", CatGambling},
	}
	for _, tt := range tests {
		if cats := ClassifyString(tt.value); !slices.Contains(cats, tt.cat) {
			t.Errorf("ClassifyString(%q) = %v, want %s", tt.value, cats, tt.cat)
		}
	}
}

func TestClassifyMundane(t *testing.T) {
	for _, s := range []string{"Index out of range", "print", "x", "", "__gc"} {
		if cats := ClassifyString(s); len(cats) != 0 {
			t.Errorf("ClassifyString(%q) = %v, want none", s, cats)
		}
	}
}

func TestClassifyCallee(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"os.execute", CatExec},
		{"io.popen", CatExec},
		{"loadstring", CatLoader},
		{"require", CatLoader},
		{"debug.sethook", CatDebug},
		{"io.open", CatFS},
		{"os.getenv", CatEnv},
		{"socket.connect", CatNet},
		{"print", ""},
		{"string.format", ""},
		{"obj:load", ""},
	}
	for _, tt := range tests {
		if got := ClassifyCallee(tt.name); got != tt.want {
			t.Errorf("ClassifyCallee(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		cats []string
		want string
	}{
		{nil, SeverityLow},
		{[]string{CatNet, CatFileExt}, SeverityLow},
		{[]string{CatNet, CatURL}, SeverityMedium},
		{[]string{CatURL, CatExec, CatNet}, SeverityHigh},
	}
	for _, tt := range tests {
		if got := MaxSeverity(tt.cats); got != tt.want {
			t.Errorf("MaxSeverity(%v) = %s, want %s", tt.cats, got, tt.want)
		}
	}
}
