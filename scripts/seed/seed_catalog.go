package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"quizcast/internal/catalog"
	"quizcast/internal/game"
)

// questionPack mirrors the starter pack layout in static/questions.json.
type questionPack struct {
	Questions []game.Question `json:"questions"`
}

func main() {
	fmt.Println("Quizcast Question Catalog Seeder")
	fmt.Println("================================")
	fmt.Println()

	// Same env loading as the server; a missing .env is fine.
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Println("DATABASE_URL must be set (postgres://...)")
		os.Exit(1)
	}

	path := "static/questions.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	var pack questionPack
	if err := json.Unmarshal(data, &pack); err != nil {
		fmt.Printf("Error parsing %s: %v\n", path, err)
		os.Exit(1)
	}
	if len(pack.Questions) == 0 {
		fmt.Printf("No questions found in %s\n", path)
		os.Exit(1)
	}

	// Skip malformed rows instead of failing the whole pack.
	valid := make([]game.Question, 0, len(pack.Questions))
	for _, q := range pack.Questions {
		if q.ID == "" || q.Text == "" || len(q.Options) != 4 {
			fmt.Printf("Skipping malformed question %q\n", q.ID)
			continue
		}
		if err := game.ValidateAnswerValue(q.CorrectAnswer); err != nil {
			fmt.Printf("Skipping %s: correct answer %q is not one of A-D\n", q.ID, q.CorrectAnswer)
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		fmt.Println("Nothing to seed after validation")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pg, err := catalog.NewPostgres(ctx, databaseURL)
	if err != nil {
		fmt.Printf("Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		fmt.Printf("Error creating schema: %v\n", err)
		os.Exit(1)
	}

	if err := pg.SaveGenerated(ctx, valid); err != nil {
		fmt.Printf("Error inserting questions: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nSeeded %d questions from %s (existing ids left untouched)\n", len(valid), path)
}
