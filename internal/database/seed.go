package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/catalog-module/internal/repository"
)

// Демонстрационный набор данных каталога.
var (
	knownAuthors = [][2]string{
		{"Neal", "Stephenson"},
		{"Ray", "Bradbury"},
		{"Philip", "Dick"},
		{"George", "Orwell"},
		{"Franz", "Kafka"},
	}

	seedFirstnames = []string{"Sierra", "Margeret", "Tommy", "Tanja", "Shawnee", "Herminia", "Lorraine", "Jamar", "Ann", "Kirk"}
	seedLastnames  = []string{"Champagne", "Ballard", "Haugland", "Bird", "Desjardin", "Drake", "Gauthier", "Kurek", "Broman", "Mantilla"}

	seedTitles = []string{
		"Rose", "The End of the World", "The Unquiet Dead", "Aliens of London",
		"World War Three", "Dalek", "The Long Game", "Father's Day",
		"The Empty Child", "The Doctor Dances", "Boom Town", "Bad Wolf",
		"The Parting of the Ways",
	}

	seedDescriptions = []string{
		"Yesterday",
		"All my troubles seemed so far away",
		"Now it looks as though they're here to stay",
		"Oh, I believe in yesterday",
		"Suddenly",
		"I'm not half the man I used to be",
		"There's a shadow hanging over me",
		"Oh, yesterday came suddenly",
		"Why she had to go, I don't know",
		"She wouldn't say",
		"I said something wrong",
		"Now I long for yesterday",
		"Love was such an easy game to play",
		"Now I need a place to hide away",
	}
)

// knownBook — книга известного автора; authorIdx — индекс в knownAuthors.
type knownBook struct {
	title       string
	date        string
	authorIdx   int
	description string
	image       string
}

var knownBooks = []knownBook{
	{"Snow Crash", "1992-06-01", 0, "History about Hiro Protagonist who fight with virus that's striking down hackers everywhere.", "snowcrash.jpg"},
	{"Fahrenheit 451", "1953-10-19", 1, "Guy Montag is a fireman. His job is to destroy the printed book, along with the houses in which they are hidden.", "fahrenheit.jpg"},
	{"Do Androids Dream of Electric Sheep?", "1968-01-01", 2, "Rick Deckard is an officially sanctioned bounty hunter tasked to find six rogue androids.", "dadoes.jpg"},
	{"1984", "1949-06-08", 3, "Big Brother is always watching you and the Thought Police can practically read your mind.", "1984.jpg"},
	{"The Trial", "1925-01-01", 4, "K. later receives a phone call summoning him to court, and the coming Sunday is arranged as the date.", "trial.jpg"},
}

// seedStart — нижняя граница дат сгенерированных книг.
var seedStart = time.Date(1928, time.January, 1, 0, 0, 0, 0, time.UTC)

// seedAuthors возвращает известных авторов и по одному сгенерированному
// на каждую фамилию из seedLastnames.
func seedAuthors(r *rand.Rand) [][]any {
	rows := make([][]any, 0, len(knownAuthors)+len(seedLastnames))
	for _, a := range knownAuthors {
		rows = append(rows, []any{a[0], a[1]})
	}
	for _, last := range seedLastnames {
		rows = append(rows, []any{pick(r, seedFirstnames), last})
	}
	return rows
}

// seedBooks генерирует n случайных книг для авторов authorIDs.
func seedBooks(r *rand.Rand, n int, authorIDs []int64, now time.Time) [][]any {
	rows := make([][]any, 0, n)
	span := now.Sub(seedStart)
	for range n {
		date := seedStart.Add(time.Duration(r.Int64N(int64(span)))).Truncate(24 * time.Hour)
		rows = append(rows, []any{
			pick(r, seedTitles),
			date,
			pick(r, authorIDs),
			pick(r, seedDescriptions),
		})
	}
	return rows
}

func pick[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// Seed заполняет каталог демонстрационными данными в одной транзакции:
// известные авторы с книгами и n сгенерированных книг (через COPY).
// Пути обложек известных книг указывают в assetDir.
func Seed(ctx context.Context, pool repository.Pool, assetDir string, n int, logger *slog.Logger) error {
	r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	authors := seedAuthors(r)
	var copied int64

	err := repository.NewTxRunner(pool).RunInTx(ctx, func(tx pgx.Tx) error {
		authorIDs := make([]int64, 0, len(authors))
		for _, a := range authors {
			var id int64
			if err := tx.QueryRow(ctx,
				"INSERT INTO author (firstname, lastname) VALUES ($1, $2) RETURNING id",
				a...).Scan(&id); err != nil {
				return fmt.Errorf("ошибка добавления автора: %w", err)
			}
			authorIDs = append(authorIDs, id)
		}

		for _, b := range knownBooks {
			if _, err := tx.Exec(ctx,
				"INSERT INTO book (title, date, author_id, description, image) VALUES ($1, $2, $3, $4, $5)",
				b.title, b.date, authorIDs[b.authorIdx], b.description, filepath.Join(assetDir, b.image)); err != nil {
				return fmt.Errorf("ошибка добавления книги %q: %w", b.title, err)
			}
		}

		var err error
		copied, err = tx.CopyFrom(ctx,
			pgx.Identifier{"book"},
			[]string{"title", "date", "author_id", "description"},
			pgx.CopyFromRows(seedBooks(r, n, authorIDs, time.Now().UTC())),
		)
		if err != nil {
			return fmt.Errorf("ошибка загрузки книг: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Демонстрационные данные загружены",
		slog.Int("authors", len(authors)),
		slog.Int64("books", copied+int64(len(knownBooks))),
	)
	return nil
}
