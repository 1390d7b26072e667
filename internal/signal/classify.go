// Package signal flags Lua functions that reference interesting strings or
// call sensitive standard library functions, and builds a focused graph of
// those functions and the call paths leading to them.
package signal

import (
	"math"
	"regexp"
	"slices"
	"strings"
)

// Categories for string and callee classification.
const (
	CatURL        = "url"
	CatHost       = "host"
	CatEncryption = "encryption"
	CatAuth       = "auth"
	CatNet        = "net"
	CatFileExt    = "file"
	CatBase64Key  = "base64"

	// Lua runtime capabilities, matched on resolved callees.
	CatExec   = "exec"   // os.execute, io.popen
	CatLoader = "loader" // load, loadstring, dofile, require, package.loadlib
	CatDebug  = "debug"  // debug library
	CatFS     = "fs"     // io.open, os.remove, os.rename
	CatEnv    = "env"    // os.getenv

	CatDataCollect = "data"       // bulk data harvesting
	CatBlockchain  = "blockchain" // wallet, mnemonic, seed phrase
	CatGambling    = "gambling"   // betting, casino, slots, lottery
)

var (
	reURL       = regexp.MustCompile(`(?i)(https?|wss?|ftp)://`)
	reIPLiteral = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reBase64    = regexp.MustCompile(`^[A-Za-z0-9+/=]{16,}$`)

	cryptoKeywords = []string{
		"encrypt", "decrypt", "cipher", "ciphertext",
		"xxtea", "xorcipher", "xordecrypt", "xorencrypt", "xorkey",
		"pbkdf", "argon2", "bcrypt", "scrypt",
		"signature", "digest",
		"hmacsha", "chacha", "blowfish", "twofish",
		"nonce", "saltvalue",
	}

	// Short words need word boundaries: "rsa" in "traversal", "tea" in "instead".
	reCryptoShort = regexp.MustCompile(`(?i)(^|[^a-zA-Z])(aes|rsa|ecdsa|ecdh|hmac|sha1|sha256|sha512|md5|cbc|ecb|gcm|pkcs|xor|rc4|3des|salt|iv)([^a-zA-Z]|$)`)

	reAuth           = regexp.MustCompile(`(?i)(^|[^a-zA-Z])(oauth|jwt|bearer|credential|passwd|apikey|api_key|api-key|authorization|authenticate)([^a-zA-Z]|$)`)
	reAuthStandalone = regexp.MustCompile(`(?i)(^|[^a-z])(password|token|secret|login)([^a-z]|$)`)

	netKeywords = []string{"socket", "connect", "dns", "proxy", "redirect"}
	httpMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

	signalExtensions = []string{
		".so", ".dll", ".dylib", ".exe",
		".zip", ".tar", ".gz",
		".json", ".xml", ".yaml", ".yml",
		".db", ".sqlite",
		".key", ".pem", ".cert", ".crt", ".p12",
		".lua", ".luac", ".sh", ".bat",
	}

	reDataCollect = regexp.MustCompile(`(?i)(data.?collect|collect.?data|harvest|bulk.?data|scrape|exfiltrat|keylog)`)

	walletKeywords = []string{
		"mnemonic", "seedphrase", "bip39", "bip44", "bip32",
		"recoveryphrase", "privatek", "keystore",
		"blockchain", "smartcontract",
		"ethereum", "solana", "bitcoin", "binance",
		"walletconnect", "walletaddress", "metamask",
	}
	reWallet = regexp.MustCompile(`(?i)(^|[^a-zA-Z])(wallet|mnemonic|seed.?phrase|private.?key|web3|nft|airdrop|crypto.?currency)([^a-zA-Z]|$)`)

	gamblingKeywords = []string{
		"casino", "slotmachine", "roulette", "blackjack",
		"jackpot", "spinwheel", "freespin",
		"sportsbet", "placebet", "betslip", "bookmaker",
		"lottery", "lotto", "pokerroom", "texasholdem",
		"placewager", "payout", "cashout",
	}
	reGambling = regexp.MustCompile(`(?i)(^|[^a-zA-Z])(bet|wager|casino|gamble|lottery|lotto|poker|roulette|jackpot|payout|cashout)([^a-zA-Z]|$)`)

	// Callee names as resolved by call site tracking.
	calleeCategories = map[string]string{
		"os.execute":      CatExec,
		"io.popen":        CatExec,
		"load":            CatLoader,
		"loadstring":      CatLoader,
		"loadfile":        CatLoader,
		"dofile":          CatLoader,
		"require":         CatLoader,
		"package.loadlib": CatLoader,
		"io.open":         CatFS,
		"io.lines":        CatFS,
		"io.output":       CatFS,
		"os.remove":       CatFS,
		"os.rename":       CatFS,
		"os.tmpname":      CatFS,
		"os.getenv":       CatEnv,
	}
	netCalleePrefixes = []string{"socket.", "http.", "ssl.", "ngx.socket", "ngx.location"}
)

// ClassifyString returns the signal categories matching value, or nil when
// the string carries no signal.
func ClassifyString(value string) []string {
	if len(value) < 2 {
		return nil
	}

	var cats []string
	lower := strings.ToLower(value)

	if reURL.MatchString(value) {
		cats = append(cats, CatURL)
	}
	if reIPLiteral.MatchString(value) {
		cats = append(cats, CatHost)
	}
	if containsKeyword(value, cryptoKeywords) || reCryptoShort.MatchString(value) {
		cats = append(cats, CatEncryption)
	}
	if reAuth.MatchString(value) || reAuthStandalone.MatchString(value) {
		cats = append(cats, CatAuth)
	}

	if slices.Contains(httpMethods, value) {
		cats = append(cats, CatNet)
	} else {
		for _, w := range netKeywords {
			if strings.Contains(lower, w) {
				cats = append(cats, CatNet)
				break
			}
		}
	}

	for _, ext := range signalExtensions {
		if strings.HasSuffix(lower, ext) || strings.Contains(lower, ext+" ") || strings.Contains(lower, ext+",") {
			cats = append(cats, CatFileExt)
			break
		}
	}

	// High-entropy standalone strings; camelCase identifiers match the
	// character set but are not keys.
	trimmed := strings.TrimSpace(value)
	if reBase64.MatchString(trimmed) && entropy(value) > 3.5 && !isCamelCase(trimmed) {
		cats = append(cats, CatBase64Key)
	}

	if reDataCollect.MatchString(value) {
		cats = append(cats, CatDataCollect)
	}
	if containsKeyword(value, walletKeywords) || reWallet.MatchString(value) {
		cats = append(cats, CatBlockchain)
	}
	if containsKeyword(value, gamblingKeywords) || reGambling.MatchString(value) {
		cats = append(cats, CatGambling)
	}
	return cats
}

// ClassifyCallee returns the category of a resolved callee name such as
// "os.execute", or "" when the call is not sensitive.
func ClassifyCallee(name string) string {
	if cat, ok := calleeCategories[name]; ok {
		return cat
	}
	if strings.HasPrefix(name, "debug.") {
		return CatDebug
	}
	for _, p := range netCalleePrefixes {
		if strings.HasPrefix(name, p) {
			return CatNet
		}
	}
	return ""
}

// Severity levels for signal categories.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// CategorySeverity returns the severity level for a category.
func CategorySeverity(cat string) string {
	switch cat {
	case CatExec, CatLoader, CatEncryption, CatAuth, CatDataCollect, CatBlockchain, CatGambling:
		return SeverityHigh
	case CatURL, CatHost, CatBase64Key, CatDebug, CatFS, CatEnv:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MaxSeverity returns the highest severity from a list of categories.
func MaxSeverity(categories []string) string {
	best := SeverityLow
	for _, c := range categories {
		switch CategorySeverity(c) {
		case SeverityHigh:
			return SeverityHigh
		case SeverityMedium:
			best = SeverityMedium
		}
	}
	return best
}

// isCamelCase reports a lowercase-to-uppercase transition ("checkSimCard").
func isCamelCase(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] >= 'a' && s[i-1] <= 'z' && s[i] >= 'A' && s[i] <= 'Z' {
			return true
		}
	}
	return false
}

// normalizeForMatch lowercases s and strips _ - space and dot, so that
// "seedPhrase", "seed_phrase" and "seed phrase" all match "seedphrase".
func normalizeForMatch(s string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c != '_' && c != '-' && c != ' ' && c != '.' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// containsKeyword checks if the normalized value contains any keyword.
func containsKeyword(value string, keywords []string) bool {
	norm := normalizeForMatch(value)
	for _, kw := range keywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

// entropy computes Shannon entropy of a string in bits per character.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	n := float64(len(s))
	var ent float64
	for _, count := range freq {
		p := float64(count) / n
		ent -= p * math.Log2(p)
	}
	return ent
}
