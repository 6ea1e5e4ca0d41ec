package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	itemmatch "github.com/retreivo/itemmatch/pkg/sdk"
)

// datasetItem is one report of a dataset file. Image is a path relative to the dataset.
type datasetItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Date        string `json:"date"`
	Image       string `json:"image,omitempty"`

	// Expected is the id of the found report a lost report should pair with.
	Expected string `json:"expected,omitempty"`
}

// dataset is the evaluation input: both collections in one file.
type dataset struct {
	Title string        `json:"title"`
	Lost  []datasetItem `json:"lost"`
	Found []datasetItem `json:"found"`

	dir string
}

func loadDataset(path string) (*dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if len(ds.Lost) == 0 && len(ds.Found) == 0 {
		return nil, fmt.Errorf("dataset %s has no items", path)
	}
	ds.dir = filepath.Dir(path)
	return &ds, nil
}

func (ds *dataset) image(it *datasetItem) ([]byte, error) {
	if it.Image == "" {
		return nil, nil
	}
	p := it.Image
	if !filepath.IsAbs(p) {
		p = filepath.Join(ds.dir, p)
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("item %s: read image: %w", it.ID, err)
	}
	return raw, nil
}

func (ds *dataset) item(it *datasetItem, t itemmatch.ReportType) (itemmatch.Item, error) {
	raw, err := ds.image(it)
	if err != nil {
		return itemmatch.Item{}, err
	}
	return itemmatch.Item{
		ID:          it.ID,
		Type:        t,
		Name:        it.Name,
		Category:    it.Category,
		Description: it.Description,
		Location:    it.Location,
		Date:        it.Date,
		Image:       raw,
	}, nil
}

func (ds *dataset) query(it *datasetItem, t itemmatch.ReportType) (itemmatch.Query, error) {
	raw, err := ds.image(it)
	if err != nil {
		return itemmatch.Query{}, err
	}
	return itemmatch.Query{
		Type:        t,
		Name:        it.Name,
		Category:    it.Category,
		Description: it.Description,
		Location:    it.Location,
		Date:        it.Date,
		Image:       raw,
	}, nil
}
