// Package naming dérive, sans effet de bord, les noms et légendes publiés à
// partir du nom de fichier brut et des métadonnées AniList.
package naming

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ParsedName regroupe les tokens extraits d'un nom de fichier.
// Les champs numériques valent 0 quand le token est absent.
type ParsedName struct {
	Raw        string
	Title      string
	Season     int
	Episode    int
	Year       int
	MultiAudio bool
}

var videoExts = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".webm": true,
	".m4v": true, ".mov": true, ".ts": true,
}

var (
	// Notre propre format de sortie: "[S01-E05] Titre [1080p] ...".
	reUpname = regexp.MustCompile(`^\[S(\d{1,2})-E(\d{1,4})\]\s*(.*)$`)

	reLeadingGroup = regexp.MustCompile(`^\s*\[[^\]]*\]\s*`)
	reSeasonEp     = regexp.MustCompile(`(?i)\bS(\d{1,2})\s*[-.]?\s*E(\d{1,4})(?:v\d)?\b`)
	reDashEp       = regexp.MustCompile(`\s-\s*(\d{1,4})(?:v\d)?\b`)
	reEpWord       = regexp.MustCompile(`(?i)\b(?:EP|Episode|E)\s*(\d{1,4})\b`)
	reSeason       = regexp.MustCompile(`(?i)\b(?:S|Season\s*)(\d{1,2})\b`)
	reYear         = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	reResolution   = regexp.MustCompile(`(?i)\b\d{3,4}p\b`)
	reBrackets     = regexp.MustCompile(`\[[^\]]*\]`)
	reParens       = regexp.MustCompile(`\([^)]*\)`)
	reHandle       = regexp.MustCompile(`@[\w-]+`)
	reSpaces       = regexp.MustCompile(`\s{2,}`)
)

// Parse extrait titre, saison, année et épisode d'un nom de fichier.
func Parse(name string) ParsedName {
	p := ParsedName{Raw: name}
	base := filepath.Base(strings.TrimSpace(name))
	if ext := filepath.Ext(base); videoExts[strings.ToLower(ext)] {
		base = strings.TrimSuffix(base, ext)
	}
	p.MultiAudio = strings.Contains(strings.ToLower(name), "multi-audio")

	if m := reUpname.FindStringSubmatch(base); m != nil {
		p.Season = atoi(m[1])
		p.Episode = atoi(m[2])
		p.Title = cleanTitle(m[3])
		return p
	}

	s := reLeadingGroup.ReplaceAllString(base, "")
	s = strings.NewReplacer("_", " ", ".", " ").Replace(s)

	head := s
	if loc := reSeasonEp.FindStringSubmatchIndex(s); loc != nil {
		p.Season = atoi(s[loc[2]:loc[3]])
		p.Episode = atoi(s[loc[4]:loc[5]])
		head = s[:loc[0]]
	} else if loc := reDashEp.FindStringSubmatchIndex(s); loc != nil {
		p.Episode = atoi(s[loc[2]:loc[3]])
		head = s[:loc[0]]
	} else if loc := reEpWord.FindStringSubmatchIndex(s); loc != nil {
		p.Episode = atoi(s[loc[2]:loc[3]])
		head = s[:loc[0]]
	}

	if p.Season == 0 {
		if loc := reSeason.FindStringSubmatchIndex(head); loc != nil {
			p.Season = atoi(head[loc[2]:loc[3]])
			head = head[:loc[0]] + " " + head[loc[1]:]
		}
	}
	if loc := reYear.FindStringSubmatchIndex(head); loc != nil {
		p.Year = atoi(head[loc[2]:loc[3]])
		head = head[:loc[0]] + " " + head[loc[1]:]
	}

	p.Title = cleanTitle(head)
	if p.Title == "" {
		p.Title = cleanTitle(base)
	}
	return p
}

func cleanTitle(s string) string {
	s = reBrackets.ReplaceAllString(s, " ")
	s = reParens.ReplaceAllString(s, " ")
	s = strings.NewReplacer("_", " ", ".", " ").Replace(s)
	s = reHandle.ReplaceAllString(s, "")
	s = reResolution.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " -")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// SearchCandidates construit les requêtes AniList en basculant les tokens
// saison et année. Ordre: (saison, année), (année), (saison), (titre seul).
// Les doublons sont ignorés.
func SearchCandidates(p ParsedName) []string {
	title := p.Title
	if title == "" {
		title = cleanTitle(p.Raw)
	}
	if title == "" {
		return nil
	}
	season := ""
	if p.Season > 0 {
		season = "S" + pad2(p.Season)
	}
	year := ""
	if p.Year > 0 {
		year = strconv.Itoa(p.Year)
	}

	// L'année passe avant la saison : "Show 2023" est essayé avant "Show S01".
	options := []struct{ withSeason, withYear bool }{
		{true, true},
		{false, true},
		{true, false},
		{false, false},
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(options))
	for _, o := range options {
		q := title
		if o.withSeason && season != "" {
			q += " " + season
		}
		if o.withYear && year != "" {
			q += " " + year
		}
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
