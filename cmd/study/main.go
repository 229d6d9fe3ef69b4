package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 15 * time.Second}

// qualityKeys lets the learner answer with a digit.
var qualityKeys = map[string]string{
	"1": "forgot",
	"2": "difficult",
	"3": "moderate",
	"4": "easy",
	"5": "perfect",
}

type studyCard struct {
	ID             string  `json:"id"`
	Front          string  `json:"front"`
	Back           string  `json:"back"`
	State          string  `json:"state"`
	Retrievability float64 `json:"retrievability"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Nuka Recall server URL")
	user := flag.String("user", "cli-user", "User whose cards are studied")
	flag.Parse()

	fmt.Println("Nuka Recall Study")
	fmt.Printf("Server: %s | User: %s\n", *server, *user)
	fmt.Println("Commands: /study, /due, /forecast, /phase, /add <front> | <back>, exit")
	fmt.Println("---")

	fetchPhase(*server, *user)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			fmt.Println("Bye!")
			return
		case input == "/study":
			study(scanner, *server, *user)
		case input == "/due":
			listDue(*server, *user)
		case input == "/forecast":
			fetchForecast(*server, *user)
		case input == "/phase":
			fetchPhase(*server, *user)
		case strings.HasPrefix(input, "/add "):
			addCard(*server, *user, strings.TrimPrefix(input, "/add "))
		default:
			printError("Unknown command %q", input)
		}
	}
}

func study(scanner *bufio.Scanner, server, user string) {
	var due []studyCard
	if !getJSON(server+"/api/users/"+user+"/due", &due) {
		return
	}
	if len(due) == 0 {
		fmt.Println("Nothing due. Come back later.")
		return
	}
	for i, c := range due {
		fmt.Printf("\n\033[36m[%d/%d]\033[0m %s\n", i+1, len(due), c.Front)
		fmt.Print("  (enter to reveal) ")
		if !scanner.Scan() {
			return
		}
		fmt.Printf("  %s\n", c.Back)

		quality := ""
		for quality == "" {
			fmt.Print("  1 forgot, 2 difficult, 3 moderate, 4 easy, 5 perfect, q to stop: ")
			if !scanner.Scan() {
				return
			}
			ans := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if ans == "q" {
				return
			}
			if q, ok := qualityKeys[ans]; ok {
				quality = q
			}
		}

		var res struct {
			NewInterval   int       `json:"new_interval"`
			NextReview    time.Time `json:"next_review"`
			State         string    `json:"state"`
			RelatedRecall []struct {
				CardID string `json:"card_id"`
			} `json:"related_recall"`
		}
		if !postJSON(server+"/api/cards/"+c.ID+"/review", map[string]string{"quality": quality}, &res) {
			continue
		}
		fmt.Printf("  \033[32m%s\033[0m, next in %d day(s) on %s\n",
			res.State, res.NewInterval, res.NextReview.Local().Format("Mon Jan 2 15:04"))
		if len(res.RelatedRecall) > 0 {
			fmt.Printf("  %d related card(s) worth a look\n", len(res.RelatedRecall))
		}
	}
}

func listDue(server, user string) {
	var due []studyCard
	if !getJSON(server+"/api/users/"+user+"/due", &due) {
		return
	}
	if len(due) == 0 {
		fmt.Println("Nothing due.")
		return
	}
	fmt.Println("Due cards:")
	for _, c := range due {
		fmt.Printf("  %-40s %-10s R=%.2f\n", c.Front, c.State, c.Retrievability)
	}
}

func fetchForecast(server, user string) {
	var days []struct {
		Date             string `json:"date"`
		DueCount         int    `json:"due_count"`
		EstimatedMinutes int    `json:"estimated_minutes"`
		Load             string `json:"load"`
	}
	if !getJSON(server+"/api/users/"+user+"/forecast", &days) {
		return
	}
	fmt.Println("Forecast:")
	for _, d := range days {
		fmt.Printf("  %s  %3d cards  ~%d min  %s\n", d.Date, d.DueCount, d.EstimatedMinutes, d.Load)
	}
}

func fetchPhase(server, user string) {
	var info struct {
		Phase          string   `json:"phase"`
		RetentionBoost float64  `json:"retention_boost"`
		PreferredKinds []string `json:"preferred_kinds"`
	}
	if !getJSON(server+"/api/users/"+user+"/phase", &info) {
		return
	}
	fmt.Printf("Phase: %s (x%.2f), best for %s cards\n",
		info.Phase, info.RetentionBoost, strings.Join(info.PreferredKinds, "/"))
}

func addCard(server, user, arg string) {
	front, back, ok := strings.Cut(arg, "|")
	if !ok {
		printError("Usage: /add <front> | <back>")
		return
	}
	var c studyCard
	if postJSON(server+"/api/cards", map[string]string{
		"user_id": user,
		"front":   strings.TrimSpace(front),
		"back":    strings.TrimSpace(back),
	}, &c) {
		fmt.Printf("Added %s\n", c.ID)
	}
}

func getJSON(url string, out interface{}) bool {
	resp, err := client.Get(url)
	if err != nil {
		printError("Request failed: %v", err)
		return false
	}
	return decode(resp, out)
}

func postJSON(url string, payload, out interface{}) bool {
	body, _ := json.Marshal(payload)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return false
	}
	return decode(resp, out)
}

func decode(resp *http.Response, out interface{}) bool {
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		printError("Failed to parse response: %v", err)
		return false
	}
	return true
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
