package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/PuerkitoBio/goquery"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UniversityImporter загружает рейтинг университетов (HTML таблица) в справочник
type UniversityImporter struct {
	db     *gorm.DB
	url    string
	client *http.Client
}

func NewUniversityImporter(db *gorm.DB, url string) *UniversityImporter {
	return &UniversityImporter{db: db, url: url, client: &http.Client{Timeout: 60 * time.Second}}
}

// ParseUniversityTable разбирает первую таблицу с колонкой названия университета.
// Колонки определяются по заголовкам: rank, university/name, country, city, country rank.
func ParseUniversityTable(r io.Reader) ([]models.University, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var result []models.University
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		cols := map[string]int{}
		table.Find("tr").First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
			h := strings.ToLower(strings.TrimSpace(cell.Text()))
			switch {
			case strings.Contains(h, "country") && strings.Contains(h, "rank"):
				cols["country_rank"] = i
			case strings.Contains(h, "rank"):
				cols["rank"] = i
			case strings.Contains(h, "university") || h == "name" || strings.Contains(h, "institution"):
				cols["name"] = i
			case strings.Contains(h, "country"):
				cols["country"] = i
			case strings.Contains(h, "city"):
				cols["city"] = i
			}
		})
		nameCol, ok := cols["name"]
		if !ok {
			return true
		}

		table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			text := func(key string) string {
				i, ok := cols[key]
				if !ok || i >= cells.Length() {
					return ""
				}
				return strings.TrimSpace(cells.Eq(i).Text())
			}
			name := text("name")
			if name == "" {
				return
			}
			u := models.University{
				Name:        name,
				Country:     text("country"),
				City:        text("city"),
				GlobalRank:  utils.ExtractFirstInt(text("rank")),
				CountryRank: utils.ExtractFirstInt(text("country_rank")),
			}
			if href, ok := cells.Eq(nameCol).Find("a").Attr("href"); ok && strings.HasPrefix(href, "http") {
				u.Website = href
			}
			u.Location = strings.Trim(strings.Join([]string{u.City, u.Country}, ", "), ", ")
			result = append(result, u)
		})
		return false
	})
	return result, nil
}

// Import скачивает страницу рейтинга и делает upsert по названию
func (ui *UniversityImporter) Import(ctx context.Context) (int, error) {
	if ui.url == "" {
		return 0, validationErr("url", "UNIVERSITY_RANKING_URL is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ui.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; 11tutors-importer/1.0)")

	resp, err := ui.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch ranking: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch ranking: status %d", resp.StatusCode)
	}

	universities, err := ParseUniversityTable(resp.Body)
	if err != nil {
		return 0, err
	}
	return ui.Save(ctx, universities)
}

// Save - upsert по уникальному названию
func (ui *UniversityImporter) Save(ctx context.Context, universities []models.University) (int, error) {
	seen := make(map[string]bool, len(universities))
	unique := universities[:0:0]
	for _, u := range universities {
		if seen[u.Name] {
			continue
		}
		seen[u.Name] = true
		unique = append(unique, u)
	}
	universities = unique
	if len(universities) == 0 {
		return 0, nil
	}
	err := ui.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"country", "city", "location", "global_rank", "country_rank", "website", "updated_at"}),
	}).CreateInBatches(universities, 100).Error
	if err != nil {
		return 0, fmt.Errorf("save universities: %w", err)
	}
	log.Printf("[UNIVERSITY IMPORT] сохранено университетов: %d", len(universities))
	return len(universities), nil
}
