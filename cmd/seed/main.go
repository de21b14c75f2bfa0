// Command seed fills a database with fake neighbours and requests for local
// development.
//
//	go run ./cmd/seed -db data/aidboard.db -users 40 -requests 120
//
// Everything goes through the service layer, so seeded data obeys the same
// rules as data created through the API: every user gets a known zipcode,
// responders live in the author's state, and closed requests credit a
// helper who actually responded.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/xid"

	"github.com/sevensolidarity/aidboard/internal/location"
	"github.com/sevensolidarity/aidboard/internal/model"
	sqliteRepo "github.com/sevensolidarity/aidboard/internal/repository/sqlite"
	"github.com/sevensolidarity/aidboard/internal/service"
)

var (
	tagPool   = []string{"food", "transport", "childcare", "housing", "medical", "moving", "tech", "pets", "translation", "yardwork"}
	skillPool = []string{"cooking", "driving", "carpentry", "tutoring", "first aid", "spanish", "plumbing", "gardening", "bike repair"}
	offerPool = []string{"rides", "meals", "spare room", "tools", "childcare", "computer help", "dog walking"}
)

type options struct {
	users    int
	requests int
	seed     int64
}

type stats struct {
	Users     int
	Requests  int
	Responses int
	Closed    int
}

func main() {
	dbPath := flag.String("db", "data/aidboard.db", "SQLite database path")
	users := flag.Int("users", 40, "number of users to create")
	requests := flag.Int("requests", 120, "number of requests to create")
	seed := flag.Int64("seed", 0, "random seed (0 picks one)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		logger.Error("failed to create database directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := sqliteRepo.New(*dbPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	st, err := run(context.Background(), db, options{users: *users, requests: *requests, seed: *seed})
	if err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		db.Close()
		os.Exit(1)
	}

	logger.Info("seed complete",
		slog.String("database", *dbPath),
		slog.Int("users", st.Users),
		slog.Int("requests", st.Requests),
		slog.Int("responses", st.Responses),
		slog.Int("closed", st.Closed),
	)
}

func run(ctx context.Context, db *sqliteRepo.DB, opts options) (stats, error) {
	var st stats
	gofakeit.Seed(opts.seed)

	// The service logs every write; keep the seed output to the summary.
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	profiles := service.NewProfileService(db, service.DefaultCatalogTTL, quiet)
	requests := service.NewRequestService(db, db, quiet)

	zips := location.Zipcodes()
	slices.Sort(zips)

	byState := make(map[string][]*model.User)
	var people []*model.User

	for range opts.users {
		u := &model.User{
			ExternalID: "seed-" + xid.New().String(),
			Username:   gofakeit.Username(),
			Email:      gofakeit.Email(),
		}
		if err := db.Upsert(ctx, u); err != nil {
			return st, fmt.Errorf("creating user: %w", err)
		}

		name := gofakeit.Name()
		zip := gofakeit.RandomString(zips)
		bio := gofakeit.Sentence(12)
		open := gofakeit.Bool()
		contacts := []model.ContactMethod{{Label: "Phone", Value: gofakeit.Phone()}}
		skills := pick(skillPool, 3)
		offers := pick(offerPool, 2)

		u, err := profiles.UpdateMe(ctx, u.ID, service.UpdateProfileInput{
			DisplayName:    &name,
			Zipcode:        &zip,
			Bio:            &bio,
			ContactMethods: &contacts,
			Skills:         &skills,
			Offers:         &offers,
			OpenToHelp:     &open,
		})
		if err != nil {
			return st, fmt.Errorf("updating profile: %w", err)
		}

		people = append(people, u)
		byState[u.Location.State] = append(byState[u.Location.State], u)
		st.Users++
	}

	if len(people) == 0 {
		return st, nil
	}

	for range opts.requests {
		author := people[gofakeit.Number(0, len(people)-1)]

		req, err := requests.Create(ctx, author.ID, service.CreateRequestInput{
			Title:       gofakeit.Sentence(gofakeit.Number(3, 7)),
			Description: gofakeit.Sentence(gofakeit.Number(10, 30)),
			Tags:        pick(tagPool, 3),
		})
		if err != nil {
			return st, fmt.Errorf("creating request: %w", err)
		}
		st.Requests++

		var responders []string
		for _, helper := range neighbours(byState[author.Location.State], author.ID, gofakeit.Number(0, 3)) {
			if _, err := requests.Respond(ctx, helper.ID, req.ID, gofakeit.Sentence(gofakeit.Number(5, 15))); err != nil {
				return st, fmt.Errorf("responding to %s: %w", req.ID, err)
			}
			responders = append(responders, helper.ID)
			st.Responses++
		}

		if len(responders) == 0 || gofakeit.Number(1, 3) != 1 {
			continue
		}

		in := service.CloseInput{OutsidePlatform: true}
		if gofakeit.Bool() {
			in = service.CloseInput{WinnerUserID: gofakeit.RandomString(responders)}
		}
		if _, err := requests.Close(ctx, author.ID, req.ID, in); err != nil {
			return st, fmt.Errorf("closing %s: %w", req.ID, err)
		}
		st.Closed++
	}

	return st, nil
}

// pick returns between 1 and n distinct entries of pool.
func pick(pool []string, n int) []string {
	shuffled := slices.Clone(pool)
	gofakeit.ShuffleStrings(shuffled)
	return shuffled[:gofakeit.Number(1, min(n, len(shuffled)))]
}

// neighbours returns up to n users from the same state other than exclude.
func neighbours(local []*model.User, exclude string, n int) []*model.User {
	var out []*model.User
	order := indexes(len(local))
	gofakeit.ShuffleInts(order)
	for _, i := range order {
		if len(out) == n {
			break
		}
		if local[i].ID != exclude {
			out = append(out, local[i])
		}
	}
	return out
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
