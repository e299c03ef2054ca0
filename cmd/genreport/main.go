// Command genreport renders a review data file as an Excel report.
// Usage: go run cmd/genreport/main.go -data review_data.json -out report.xlsx
package main

import (
	"flag"
	"log"

	"github.com/nemf/photo-review/internal/export"
	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/store"
)

func main() {
	dataPath := flag.String("data", "review_data.json", "review data file")
	outPath := flag.String("out", "review_report.xlsx", "output xlsx path")
	flag.Parse()

	st, err := store.Load(*dataPath, logger.NewNop())
	if err != nil {
		log.Fatal(err)
	}

	var writeErr error
	st.View(func(snap *store.Snapshot) {
		writeErr = export.WriteReport(snap, *outPath)
	})
	if writeErr != nil {
		log.Fatal(writeErr)
	}
	log.Printf("Created %s", *outPath)
}
