package sheets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	callAttempts  = 4
	callBaseDelay = 500 * time.Millisecond
	callMaxDelay  = 10 * time.Second
)

// Client implements API against the real Google Sheets service with a
// service-account JWT. Transient failures (network, 429, 5xx) are retried
// with exponential backoff inside each call; structural 4xx errors surface
// immediately as ErrStructuralMismatch so the store can react.
type Client struct {
	service *gsheets.Service
}

func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	srv, err := gsheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{service: srv}, nil
}

// classifyErr maps API failures onto the store's taxonomy.
func classifyErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 400 || apiErr.Code == 404:
			return fmt.Errorf("%w: %v", ErrStructuralMismatch, err)
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, ErrStructuralMismatch) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	// Network-level failures have no code; retry them.
	return true
}

func (c *Client) call(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < callAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(callBaseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > callMaxDelay {
				delay = callMaxDelay
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err = op(); err == nil {
			return nil
		}
		err = classifyErr(err)
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (c *Client) GetValues(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	var values [][]any
	err := c.call(ctx, func() error {
		resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
		if err != nil {
			return err
		}
		values = resp.Values
		return nil
	})
	return values, err
}

func (c *Client) UpdateValues(ctx context.Context, spreadsheetID, writeRange string, values [][]any) error {
	return c.call(ctx, func() error {
		_, err := c.service.Spreadsheets.Values.Update(spreadsheetID, writeRange, &gsheets.ValueRange{Values: values}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
}

func (c *Client) BatchUpdateValues(ctx context.Context, spreadsheetID string, updates []ValueUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	data := make([]*gsheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &gsheets.ValueRange{
			Range:  u.Range,
			Values: [][]any{{u.Value}},
		})
	}
	return c.call(ctx, func() error {
		_, err := c.service.Spreadsheets.Values.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateValuesRequest{
			ValueInputOption: "RAW",
			Data:             data,
		}).Context(ctx).Do()
		return err
	})
}

func (c *Client) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	var titles []string
	err := c.call(ctx, func() error {
		spreadsheet, err := c.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
		if err != nil {
			return err
		}
		titles = titles[:0]
		for _, sheet := range spreadsheet.Sheets {
			titles = append(titles, sheet.Properties.Title)
		}
		return nil
	})
	return titles, err
}

func (c *Client) SheetID(ctx context.Context, spreadsheetID, title string) (int64, error) {
	var id int64 = -1
	err := c.call(ctx, func() error {
		spreadsheet, err := c.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
		if err != nil {
			return err
		}
		for _, sheet := range spreadsheet.Sheets {
			if sheet.Properties.Title == title {
				id = sheet.Properties.SheetId
				return nil
			}
		}
		return fmt.Errorf("%w: sheet %q not found", ErrStructuralMismatch, title)
	})
	return id, err
}

func (c *Client) AddSheet(ctx context.Context, spreadsheetID, title string) (int64, error) {
	var id int64 = -1
	err := c.call(ctx, func() error {
		resp, err := c.service.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
			Requests: []*gsheets.Request{{
				AddSheet: &gsheets.AddSheetRequest{
					Properties: &gsheets.SheetProperties{Title: title},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
			id = resp.Replies[0].AddSheet.Properties.SheetId
		}
		return nil
	})
	return id, err
}

func (c *Client) BatchUpdate(ctx context.Context, spreadsheetID string, requests []*gsheets.Request) error {
	if len(requests) == 0 {
		return nil
	}
	return c.call(ctx, func() error {
		_, err := c.service.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}).Context(ctx).Do()
		return err
	})
}
