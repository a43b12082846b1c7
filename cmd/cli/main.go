package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sovrhq/clearing/internal/adapter/http/dto"
)

var (
	baseURL string
	timeout time.Duration

	exitFn = os.Exit
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clearingctl",
		Short: "Clearing engine CLI tool",
		Long:  `A command line interface for the sovereign clearing engine API.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the clearing API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		accountCmd(),
		submitCmd(),
		submitBatchCmd(),
		intentCmd(),
		narrativeCmd(),
		consistencyCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		exitFn(1)
	}
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account registry operations",
	}

	var (
		id            string
		name          string
		accountType   string
		allowNegative bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Provision an account in the registry and at the ledger authority",
		Run: func(c *cobra.Command, args []string) {
			req := dto.ProvisionAccountRequest{ID: id, Name: name, Type: accountType}
			if c.Flags().Changed("allow-negative") {
				req.AllowNegative = &allowNegative
			}
			body, status := doRequest(http.MethodPost, "/api/v1/accounts", req)
			if status != http.StatusCreated {
				fail("provision failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}
	create.Flags().StringVar(&id, "id", "", "Account id (generated when empty)")
	create.Flags().StringVar(&name, "name", "", "Account name")
	create.Flags().StringVar(&accountType, "type", "", "Account type: asset, liability, equity, income, expense")
	create.Flags().BoolVar(&allowNegative, "allow-negative", false, "Allow the balance to go negative")
	create.MarkFlagRequired("name")
	create.MarkFlagRequired("type")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Get an account",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			body, status := doRequest(http.MethodGet, "/api/v1/accounts/"+url.PathEscape(args[0]), nil)
			if status != http.StatusOK {
				fail("get failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Run: func(c *cobra.Command, args []string) {
			path := fmt.Sprintf("/api/v1/accounts?limit=%d&offset=%d", limit, offset)
			body, status := doRequest(http.MethodGet, path, nil)
			if status != http.StatusOK {
				fail("list failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Page size")
	list.Flags().IntVar(&offset, "offset", 0, "Page offset")

	balance := &cobra.Command{
		Use:   "balance <id>",
		Short: "Read the account balance from the ledger authority",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			body, status := doRequest(http.MethodGet, "/api/v1/accounts/"+url.PathEscape(args[0])+"/balance", nil)
			if status != http.StatusOK {
				fail("balance failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}

	setActive := &cobra.Command{
		Use:   "set-active <id> <true|false>",
		Short: "Activate or deactivate an account for new entries",
		Args:  cobra.ExactArgs(2),
		Run: func(c *cobra.Command, args []string) {
			active, err := strconv.ParseBool(args[1])
			if err != nil {
				fail("invalid active value %q: %v", args[1], err)
			}
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/active"
			body, status := doRequest(http.MethodPatch, path, dto.SetAccountActiveRequest{Active: active})
			if status != http.StatusOK {
				fail("set-active failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}

	cmd.AddCommand(create, get, list, balance, setActive)
	return cmd
}

func submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <entry.json>",
		Short: "Submit a clearing intent (use - for stdin)",
		Long: `Submit a clearing intent to a terminal outcome. Missing intent and
entry ids are generated, so an edited file can be resubmitted as a new intent.`,
		Args: cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			req := readEntry(args[0])
			body, status := doRequest(http.MethodPost, "/api/v1/clearings", req)

			switch status {
			case http.StatusCreated:
				fmt.Println("CLEARED_FINALIZED")
			case http.StatusOK:
				fmt.Println("CLEARED_FINALIZED (replay)")
			case http.StatusUnprocessableEntity:
				fmt.Println("REJECTED")
				printBody(body)
				exitFn(1)
				return
			default:
				fail("clearing failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}
}

func submitBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit-batch <batch.json>",
		Short: "Submit a batch of entries under one reservation (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			data := readInput(args[0])
			var req dto.SubmitBatchRequest
			if err := json.Unmarshal(data, &req); err != nil {
				fail("failed to parse batch: %v", err)
			}
			for i := range req.Entries {
				fillIdentifiers(&req.Entries[i])
			}

			body, status := doRequest(http.MethodPost, "/api/v1/clearings/batch", req)
			if status != http.StatusCreated {
				fmt.Printf("batch not fully committed (status %d)\n", status)
				printBody(body)
				exitFn(1)
				return
			}
			printBody(body)
		},
	}
}

func intentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "intent <intent-id>",
		Short: "Look up the recorded terminal result for an intent",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			body, status := doRequest(http.MethodGet, "/api/v1/clearings/"+url.PathEscape(args[0]), nil)
			if status != http.StatusOK {
				fail("lookup failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}
}

func narrativeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "narrative",
		Short: "Narrative mirror operations",
	}

	get := &cobra.Command{
		Use:   "get <intent-id>",
		Short: "Get the narrative record for an intent",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			body, status := doRequest(http.MethodGet, "/api/v1/narratives/"+url.PathEscape(args[0]), nil)
			if status != http.StatusOK {
				fail("get failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}

	var (
		source    string
		accountID string
		from      string
		to        string
		limit     int
		offset    int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "Query narrative records",
		Run: func(c *cobra.Command, args []string) {
			params := url.Values{}
			if source != "" {
				params.Set("source", source)
			}
			if accountID != "" {
				params.Set("account_id", accountID)
			}
			if from != "" {
				params.Set("from", from)
			}
			if to != "" {
				params.Set("to", to)
			}
			params.Set("limit", strconv.Itoa(limit))
			params.Set("offset", strconv.Itoa(offset))

			body, status := doRequest(http.MethodGet, "/api/v1/narratives?"+params.Encode(), nil)
			if status != http.StatusOK {
				fail("query failed (status %d): %s", status, string(body))
			}
			printBody(body)
		},
	}
	list.Flags().StringVar(&source, "source", "", "Filter by source (ACH, CARD, ANCHOR, INTERNAL, CORRECTION)")
	list.Flags().StringVar(&accountID, "account", "", "Filter by account id")
	list.Flags().StringVar(&from, "from", "", "Finalized-at lower bound (RFC 3339)")
	list.Flags().StringVar(&to, "to", "", "Finalized-at upper bound (RFC 3339)")
	list.Flags().IntVar(&limit, "limit", 50, "Page size")
	list.Flags().IntVar(&offset, "offset", 0, "Page offset")

	cmd.AddCommand(get, list)
	return cmd
}

func consistencyCmd() *cobra.Command {
	var (
		since string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "consistency [intent-id]",
		Short: "Check the finality tracker against the mirror and the authority",
		Args:  cobra.MaximumNArgs(1),
		Run: func(c *cobra.Command, args []string) {
			if len(args) == 1 {
				body, status := doRequest(http.MethodGet, "/api/v1/consistency/"+url.PathEscape(args[0]), nil)
				if status != http.StatusOK {
					fail("check failed (status %d): %s", status, string(body))
				}
				printBody(body)
				return
			}

			params := url.Values{}
			if since != "" {
				params.Set("since", since)
			}
			params.Set("limit", strconv.Itoa(limit))

			body, status := doRequest(http.MethodGet, "/api/v1/consistency?"+params.Encode(), nil)
			if status != http.StatusOK {
				fail("consistency check failed (status %d): %s", status, string(body))
			}

			var report struct {
				MirrorConsistent bool `json:"mirror_consistent"`
			}
			if err := json.Unmarshal(body, &report); err != nil {
				fail("failed to parse report: %v", err)
			}

			printBody(body)
			if report.MirrorConsistent {
				fmt.Println("Mirror consistency PASSED")
			} else {
				fmt.Println("Mirror consistency FAILED")
				exitFn(1)
			}
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Check intents finalized since (RFC 3339, default 24h ago)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max intents to check")
	return cmd
}

// readEntry loads a clearing request and fills in generated identifiers.
func readEntry(path string) dto.SubmitClearingRequest {
	data := readInput(path)

	var req dto.SubmitClearingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		fail("failed to parse entry: %v", err)
	}
	fillIdentifiers(&req)
	return req
}

func fillIdentifiers(req *dto.SubmitClearingRequest) {
	if req.IntentID == "" {
		req.IntentID = uuid.NewString()
	}
	if req.EntryID == "" {
		req.EntryID = uuid.NewString()
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}
}

func readInput(path string) []byte {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail("failed to read stdin: %v", err)
		}
		return data
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fail("failed to read %s: %v", path, err)
	}
	return data
}

func doRequest(method, path string, payload any) ([]byte, int) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			fail("failed to encode request: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reqBody)
	if err != nil {
		fail("failed to build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		fail("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode
}

func printBody(data []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(buf.String())
}

func fail(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	exitFn(1)
}
