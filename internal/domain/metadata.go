package domain

type MediaTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

// FuzzyDate suit le format AniList : chaque champ peut être absent.
type FuzzyDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d FuzzyDate) IsComplete() bool {
	return d.Year > 0 && d.Month >= 1 && d.Month <= 12 && d.Day > 0
}

// AnimeMetadata peut rester vide si la résolution échoue : le pipeline
// continue avec le nom parsé.
type AnimeMetadata struct {
	ID           int        `json:"id"`
	IDMal        int        `json:"idMal"`
	Title        MediaTitle `json:"title"`
	Format       string     `json:"format"`
	Status       string     `json:"status"`
	Description  string     `json:"description"`
	StartDate    FuzzyDate  `json:"startDate"`
	EndDate      FuzzyDate  `json:"endDate"`
	Season       string     `json:"season"`
	SeasonYear   int        `json:"seasonYear"`
	Episodes     int        `json:"episodes"`
	Duration     int        `json:"duration"`
	Genres       []string   `json:"genres"`
	Synonyms     []string   `json:"synonyms"`
	AverageScore int        `json:"averageScore"`
	Source       string     `json:"source"`
	SiteURL      string     `json:"siteUrl"`
	CoverImage   struct {
		Large string `json:"large"`
	} `json:"coverImage"`
}

func (m AnimeMetadata) IsZero() bool {
	return m.ID == 0 && m.Title == (MediaTitle{}) && len(m.Genres) == 0 && m.Description == ""
}

// PreferredTitle : english → romaji → native, sinon fallback.
func (m AnimeMetadata) PreferredTitle(fallback string) string {
	switch {
	case m.Title.English != "":
		return m.Title.English
	case m.Title.Romaji != "":
		return m.Title.Romaji
	case m.Title.Native != "":
		return m.Title.Native
	default:
		return fallback
	}
}
