// Package main implements the chartctl CLI for manual operations
// against a running chartd server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the chartd HTTP server
	serverURL string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "chartctl",
	Short:   "CLI for chartd server operations",
	Long:    `chartctl is a command-line interface for a running chartd server: ingest extracted document text, query for context, and inspect document status.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "chartd server URL")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(healthCmd)
}

// ingestCmd uploads extracted text from a file or stdin
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest extracted document text from a file or stdin",
	Long: `Ingest extracted document text into chartd.

Examples:
  # Ingest a text file
  chartctl ingest visit-notes.txt

  # Ingest from stdin
  pdftotext chart.pdf - | chartctl ingest --filename chart.pdf -

  # Assign categories
  chartctl ingest --category cardiology --category labs visit-notes.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var (
	ingestFilename   string
	ingestCategories []string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestFilename, "filename", "", "original filename (defaults to the input file name)")
	ingestCmd.Flags().StringArrayVar(&ingestCategories, "category", nil, "category label (repeatable)")
}

// contextCmd queries for retrieval context
var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Retrieve a context block for a question",
	Long: `Retrieve the assembled context block and citations for a question.

Examples:
  chartctl context "what medications is the patient taking"
  chartctl context --json "recent lab results"`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

var contextJSON bool

func init() {
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "print the raw JSON response")
}

// listCmd lists ingested documents
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents and their status",
	RunE:  runList,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check chartd server health",
	RunE:  runHealth,
}

// Request/response bodies mirror internal/httpapi.

type ingestRequest struct {
	Filename   string   `json:"filename"`
	Categories []string `json:"categories,omitempty"`
	Text       string   `json:"text"`
}

type ingestResponse struct {
	DocumentID     string `json:"document_id"`
	Status         string `json:"status"`
	Generation     int    `json:"generation"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddedChunks int    `json:"embedded_chunks"`
	TruncatedChars int    `json:"truncated_chars"`
}

type contextRequest struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories,omitempty"`
}

type citation struct {
	RefIndex    int    `json:"ref_index"`
	ChunkID     string `json:"chunk_id"`
	Filename    string `json:"filename"`
	SectionHint string `json:"section_hint,omitempty"`
	Excerpt     string `json:"excerpt"`
}

type contextResponse struct {
	ContextText string     `json:"context_text"`
	Citations   []citation `json:"citations"`
	NoMatch     bool       `json:"no_match"`
}

type documentInfo struct {
	ID             string `json:"document_id"`
	Filename       string `json:"filename"`
	Status         string `json:"processing_status"`
	Generation     int    `json:"generation"`
	ChunkCount     int    `json:"chunk_count"`
	TruncatedChars int    `json:"truncated_chars"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	var text []byte
	var err error

	if args[0] == "-" {
		text, err = io.ReadAll(os.Stdin)
		if ingestFilename == "" {
			return fmt.Errorf("--filename is required when reading from stdin")
		}
	} else {
		text, err = os.ReadFile(args[0])
		if ingestFilename == "" {
			ingestFilename = filepath.Base(args[0])
		}
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	var resp ingestResponse
	if err := postJSON("/api/v1/documents", ingestRequest{
		Filename:   ingestFilename,
		Categories: ingestCategories,
		Text:       string(text),
	}, &resp); err != nil {
		return err
	}

	fmt.Printf("document %s: %s (generation %d, %d chunks, %d embedded)\n",
		resp.DocumentID, resp.Status, resp.Generation, resp.ChunkCount, resp.EmbeddedChunks)
	if resp.TruncatedChars > 0 {
		fmt.Printf("warning: %d trailing characters truncated at the chunk cap\n", resp.TruncatedChars)
	}
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	var resp contextResponse
	if err := postJSON("/api/v1/context", contextRequest{Query: args[0]}, &resp); err != nil {
		return err
	}

	if contextJSON {
		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(resp.ContextText)
	if len(resp.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range resp.Citations {
			fmt.Printf("  [%d] %s (%s)\n", c.RefIndex, c.Filename, c.ChunkID)
		}
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	body, err := get("/api/v1/documents")
	if err != nil {
		return err
	}

	var docs []documentInfo
	if err := json.Unmarshal(body, &docs); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(docs) == 0 {
		fmt.Println("no documents")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%s  %-10s gen=%d chunks=%d  %s\n",
			d.ID, d.Status, d.Generation, d.ChunkCount, d.Filename)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	body, err := get("/health")
	if err != nil {
		return err
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("server %s: %s\n", serverURL, resp.Status)
	return nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 2 * time.Minute}
}

func postJSON(path string, reqBody, respBody any) error {
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	resp, err := httpClient().Post(serverURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("connecting to chartd: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return json.Unmarshal(body, respBody)
}

func get(path string) ([]byte, error) {
	resp, err := httpClient().Get(serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("connecting to chartd: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}
