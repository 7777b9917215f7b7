package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hyperjump/sokuin/internal/cli"
	"github.com/hyperjump/sokuin/internal/models"
	"github.com/hyperjump/sokuin/internal/storage"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// searchURL builds the GET /api/v1/search URL for req.
func searchURL(serverURL string, req searchRequest) string {
	v := url.Values{}
	v.Set("q", req.Term)
	v.Set("page", strconv.Itoa(req.Page))
	v.Set("per_page", strconv.Itoa(req.PerPage))
	if req.Raw {
		v.Set("raw", "true")
	}
	if req.Take > 0 {
		v.Set("take", strconv.Itoa(req.Take))
	}
	for _, f := range req.Where {
		v.Add("where", fmt.Sprintf("%s:%s:%v", f.Column, f.Op, f.Value))
	}
	for field, value := range req.Filters {
		v.Add("filter", field+":"+value)
	}
	return serverURL + "/api/v1/search?" + v.Encode()
}

// getJSON decodes the JSON body of a GET into out. Non-2xx responses become errors
// carrying the server's message.
func getJSON(target string, out any) error {
	resp, err := httpClient.Get(target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func searchViaHTTP(serverURL string, req searchRequest, format cli.OutputFormat) error {
	target := searchURL(serverURL, req)
	if req.Raw {
		var page models.Page[models.Hit]
		if err := getJSON(target, &page); err != nil {
			return err
		}
		return cli.WriteRawPage(os.Stdout, &page, format)
	}
	var page models.Page[*models.Record]
	if err := getJSON(target, &page); err != nil {
		return err
	}
	return cli.WritePage(os.Stdout, &page, format)
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	StorageDriver string `json:"storage_driver"`
	DatabasePath  string `json:"database_path,omitempty"`
	EngineDriver  string `json:"engine_driver"`
	Index         string `json:"index"`
	PerPage       int    `json:"per_page"`
	MaxPerPage    int    `json:"max_per_page,omitempty"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Records          int64                 `json:"records"`
	DiskUsageBytes   *int64                `json:"disk_usage_bytes,omitempty"`
	WatchDirectories []string              `json:"watch_directories,omitempty"`
	Config           *statusConfigResponse `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fail("Status failed: %v", err)
		}
	} else {
		cfg, logger, components := setup(*configPath)
		defer components.Close()
		defer logger.Sync()
		count, err := components.Store.Count(context.Background())
		if err != nil {
			fail("Count records failed: %v", err)
		}
		status = statusResponse{
			Records: count,
			Config: &statusConfigResponse{
				StorageDriver: cfg.Storage.Driver,
				DatabasePath:  cfg.Storage.DatabasePath,
				EngineDriver:  components.Engine.Driver(),
				Index:         components.Index.Name(),
				PerPage:       components.Searcher.PerPage(),
				MaxPerPage:    cfg.Search.MaxPerPage,
			},
		}
		paths := []string{cfg.Storage.DatabasePath}
		if cfg.Engine.Driver == "bleve" {
			paths = append(paths, cfg.Engine.BlevePath)
		}
		if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	err := cli.WriteValue(os.Stdout, status, cli.ParseFormat(*outputFormat), func(w io.Writer) { writeStatusText(w, &status) })
	if err != nil {
		fail("Output failed: %v", err)
	}
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "records:            %d   # rows in the local store\n", status.Records)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + index on disk\n", *status.DiskUsageBytes)
	}
	for _, d := range status.WatchDirectories {
		fmt.Fprintf(w, "watching:           %s\n", d)
	}
	if c := status.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "storage_driver:     %s\n", c.StorageDriver)
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		fmt.Fprintf(w, "engine_driver:      %s\n", c.EngineDriver)
		fmt.Fprintf(w, "index:              %s\n", c.Index)
		fmt.Fprintf(w, "per_page:           %d\n", c.PerPage)
		if c.MaxPerPage > 0 {
			fmt.Fprintf(w, "max_per_page:       %d\n", c.MaxPerPage)
		}
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: sokuin watch <add|remove|list> [path]")
		fmt.Println("  sokuin watch add <path>     Add directory to watch")
		fmt.Println("  sokuin watch remove <path>  Remove directory from watch")
		fmt.Println("  sokuin watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "do not import files already in the directory")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	base := *serverURL + "/api/v1/watch/directories"

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fail("Usage: sokuin watch add <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]any{"path": path, "sync": !*noSync})
		resp, err := httpClient.Post(base, "application/json", bytes.NewReader(body))
		if err != nil {
			fail("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if err := decodeResponse(resp, nil); err != nil {
			fail("Add failed: %v", err)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fail("Usage: sokuin watch remove <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, base+"?path="+url.QueryEscape(path), nil)
		resp, err := httpClient.Do(req)
		if err != nil {
			fail("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if err := decodeResponse(resp, nil); err != nil {
			fail("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := getJSON(base, &out); err != nil {
			fail("List failed: %v", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fail("Unknown watch subcommand: %s", sub)
	}
}
