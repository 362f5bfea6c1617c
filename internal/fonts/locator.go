package fonts

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// Environment variables consulted by the locator.
const (
	EnvFontPath = "OCR_JPN_FONT"
	EnvFontDir  = "OCR_JPN_FONT_DIR"
	EnvFontDir2 = "OCR_FONT_DIR"
)

// knownFiles are tried by exact name in every directory before globbing.
var knownFiles = []string{
	"ipaexg.ttf",
	"ipaexm.ttf",
	"ipag.ttf",
	"ipam.ttf",
	"NotoSansJP-Regular.ttf",
	"NotoSerifJP-Regular.ttf",
	"SourceHanSansJP-Regular.ttf",
}

// patterns are matched against base names while walking a directory.
var patterns = []string{
	"*ipaex*.ttf",
	"*ipag*.ttf",
	"*ipam*.ttf",
	"*NotoSansJP*.ttf",
	"*NotoSerifJP*.ttf",
	"*NotoSansCJK*.ttf",
	"*SourceHan*.ttf",
}

// Locator searches the filesystem for a Japanese-capable TrueType font.
type Locator struct {
	// Path is an explicit font file. When set and valid, nothing else is
	// searched.
	Path string

	// Dirs are searched before the environment and platform directories.
	Dirs []string

	// EmbeddedFallback returns the built-in font when nothing is found.
	EmbeddedFallback bool

	Logger *slog.Logger
}

// Locate returns the first valid font from, in order: the explicit path,
// OCR_JPN_FONT, configured and environment directories, user and system
// font directories, and finally the embedded fallback.
func (l *Locator) Locate() (*Font, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, p := range []string{l.Path, os.Getenv(EnvFontPath)} {
		if p == "" {
			continue
		}
		f, err := Load(expandHome(p))
		if err == nil {
			return f, nil
		}
		logger.Warn("configured font unusable", "path", p, "error", err)
	}

	dirs := l.searchDirs()

	for _, dir := range dirs {
		for _, name := range knownFiles {
			if f := tryLoad(logger, filepath.Join(dir, name)); f != nil {
				return f, nil
			}
		}
	}

	for _, dir := range dirs {
		if f := walkDir(logger, dir); f != nil {
			return f, nil
		}
	}

	if l.EmbeddedFallback {
		logger.Info("no system font found, using embedded fallback", "font", EmbeddedName)
		return Fallback()
	}
	return nil, ErrNoFont
}

// searchDirs lists candidate directories in priority order, without
// duplicates.
func (l *Locator) searchDirs() []string {
	var dirs []string
	dirs = append(dirs, l.Dirs...)
	for _, env := range []string{EnvFontDir, EnvFontDir2} {
		if v := os.Getenv(env); v != "" {
			dirs = append(dirs, v)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".fonts"),
			filepath.Join(home, ".local", "share", "fonts"),
		)
		if runtime.GOOS == "darwin" {
			dirs = append(dirs, filepath.Join(home, "Library", "Fonts"))
		}
	}

	switch runtime.GOOS {
	case "darwin":
		dirs = append(dirs,
			"/Library/Fonts",
			"/System/Library/Fonts",
			"/System/Library/Fonts/Supplemental",
			"/Library/Application Support/Microsoft/Fonts",
		)
	case "windows":
		windir := os.Getenv("WINDIR")
		if windir == "" {
			windir = `C:\Windows`
		}
		dirs = append(dirs, filepath.Join(windir, "Fonts"))
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			dirs = append(dirs, filepath.Join(local, "Microsoft", "Windows", "Fonts"))
		}
	default:
		dirs = append(dirs, "/usr/share/fonts", "/usr/local/share/fonts")
	}

	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		d = filepath.Clean(expandHome(d))
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func tryLoad(logger *slog.Logger, path string) *Font {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	f, err := Load(path)
	if err != nil {
		logger.Debug("skipping font", "path", path, "error", err)
		return nil
	}
	return f
}

// walkDir returns the first valid font under dir whose name matches one of
// the patterns, trying patterns in priority order.
func walkDir(logger *slog.Logger, dir string) *Font {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}

	matches := make(map[string][]string)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, d.Name()); ok {
				matches[p] = append(matches[p], path)
				break
			}
		}
		return nil
	})

	var found *Font
	for _, p := range patterns {
		for _, path := range matches[p] {
			if found = tryLoad(logger, path); found != nil {
				return found
			}
		}
	}
	return nil
}

func expandHome(p string) string {
	if len(p) >= 2 && p[0] == '~' && (p[1] == '/' || p[1] == '\\') {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
