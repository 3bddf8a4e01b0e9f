package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// SocialMutation is the message format consumed by the backend
type SocialMutation struct {
	PlayerID string                 `json:"player_id"`
	Ops      map[string]interface{} `json:"ops"`
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

// seedPlayers creates the player pool through the HTTP API and returns the
// minted identifiers
func seedPlayers(apiURL string, count int) ([]string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	ids := make([]string, 0, count)

	for i := 0; i < count; i++ {
		body, _ := json.Marshal(map[string]string{"player_name": getPlayerName(i)})
		resp, err := client.Post(apiURL+"/players", "application/json", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating player: %w", err)
		}

		var created struct {
			PlayerID string `json:"player_id"`
		}
		err = json.NewDecoder(resp.Body).Decode(&created)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			if err != nil {
				return nil, fmt.Errorf("decoding create response: %w", err)
			}
			ids = append(ids, created.PlayerID)
		case http.StatusConflict:
			// Player pool from a previous run; look the id up by name
			resp, err := client.Get(apiURL + "/players/by-name/" + getPlayerName(i))
			if err != nil {
				return nil, fmt.Errorf("looking up player: %w", err)
			}
			var existing struct {
				PlayerID string `json:"player_id"`
			}
			err = json.NewDecoder(resp.Body).Decode(&existing)
			resp.Body.Close()
			if err != nil || existing.PlayerID == "" {
				return nil, fmt.Errorf("looking up existing player %q", getPlayerName(i))
			}
			ids = append(ids, existing.PlayerID)
		default:
			return nil, fmt.Errorf("creating player: unexpected status %d", resp.StatusCode)
		}
	}
	return ids, nil
}

// randomMutation picks a weighted random social operation between two pool
// members
func randomMutation(ids []string) SocialMutation {
	target := ids[rand.Intn(len(ids))]
	partner := ids[rand.Intn(len(ids))]

	var ops map[string]interface{}
	switch rand.Intn(6) {
	case 0:
		ops = map[string]interface{}{"add_friend": partner}
	case 1:
		ops = map[string]interface{}{"remove_friend": partner}
	case 2:
		ops = map[string]interface{}{"add_blocked": partner}
	case 3:
		ops = map[string]interface{}{"remove_blocked": partner}
	case 4:
		ops = map[string]interface{}{
			"add_incoming_request": map[string]interface{}{
				"from_id":   partner,
				"from_name": "LoadTest",
				"sent_at":   time.Now().UnixMilli(),
			},
		}
	default:
		// Accept flow: add the friend, resolve the request
		ops = map[string]interface{}{
			"add_friend":                   partner,
			"remove_incoming_request_from": partner,
		}
	}

	return SocialMutation{PlayerID: target, Ops: ops}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "player-social-mutations", "Kafka topic")
	apiURL := flag.String("api", "http://localhost:3000", "Backend API base URL for seeding players")
	totalPlayers := flag.Int("players", 100, "Size of the player pool to seed")
	mutationsPerSecond := flag.Int("rate", 50, "Mutations per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Social mutation producer")
	fmt.Printf("  Brokers:       %s\n", *brokers)
	fmt.Printf("  Topic:         %s\n", *topic)
	fmt.Printf("  API:           %s\n", *apiURL)
	fmt.Printf("  Player pool:   %d\n", *totalPlayers)
	fmt.Printf("  Mutations/sec: %d\n", *mutationsPerSecond)
	fmt.Println()

	log.Printf("Seeding %d players via %s", *totalPlayers, *apiURL)
	ids, err := seedPlayers(*apiURL, *totalPlayers)
	if err != nil {
		log.Fatalf("Failed to seed players: %v", err)
	}
	log.Printf("Player pool ready: %d ids", len(ids))

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*mutationsPerSecond))
	defer ticker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	log.Printf("Producing mutations, Ctrl-C to stop")

	var sent int64
loop:
	for {
		select {
		case <-sigChan:
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			mutation := randomMutation(ids)
			data, err := json.Marshal(mutation)
			if err != nil {
				log.Printf("Failed to marshal mutation: %v", err)
				continue
			}

			// Key by player id so per-player order is preserved
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(mutation.PlayerID),
				Value: sarama.ByteEncoder(data),
			}
			sent++
		}
	}

	log.Printf("Stopping producer, %d mutations queued", sent)
	producer.AsyncClose()
	wg.Wait()

	log.Printf("Done: %d delivered, %d failed",
		atomic.LoadInt64(&successCount),
		atomic.LoadInt64(&errorCount),
	)
}
