package snapshot

import (
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Rule maps a file inside the live profile directory to its location inside
// the archived minimal layout.
type Rule struct {
	Src  string
	Dest string
}

// Manifest describes which profile files carry the authentication state.
// Snapshots archive only these; everything else in the profile is cache
// that the engine rebuilds.
type Manifest struct {
	// Critical files copied verbatim when present.
	Critical []Rule
	// TokenDir is the live log-structured database directory that holds the
	// auth token, relative to the profile root.
	TokenDir string
	// TokenDestDir is where TokenDir files live inside the archive.
	TokenDestDir string
	// TokenPattern selects candidate token files within TokenDir.
	TokenPattern *regexp.Regexp
}

const (
	profileTokenDir  = "Default/IndexedDB/https_web.whatsapp.com_0.indexeddb.leveldb"
	archiveTokenDir  = "Default/whatsapp_db"
	profileCookieSrc = "Default/Cookies"
)

// DefaultManifest returns the manifest for a Chromium-based engine profile.
func DefaultManifest() Manifest {
	return Manifest{
		Critical: []Rule{
			{Src: profileCookieSrc, Dest: profileCookieSrc},
			{Src: profileTokenDir + "/CURRENT", Dest: archiveTokenDir + "/CURRENT"},
			{Src: profileTokenDir + "/MANIFEST-000001", Dest: archiveTokenDir + "/MANIFEST-000001"},
		},
		TokenDir:     profileTokenDir,
		TokenDestDir: archiveTokenDir,
		TokenPattern: regexp.MustCompile(`[0-9]{6}\.ldb$`),
	}
}

// latestTokenRule finds the most recently modified token file under dataDir
// and returns its archive rule. Returns false when the directory is missing
// or holds no matching files.
func (m Manifest) latestTokenRule(dataDir string) (Rule, bool) {
	dir := filepath.Join(dataDir, filepath.FromSlash(m.TokenDir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Rule{}, false
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !m.TokenPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = entry.Name()
			newestMod = info.ModTime()
		}
	}

	if newest == "" {
		return Rule{}, false
	}
	return Rule{
		Src:  m.TokenDir + "/" + newest,
		Dest: m.TokenDestDir + "/" + newest,
	}, true
}
