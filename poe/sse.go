package poe

import (
	"encoding/json"
	"fmt"

	"github.com/labstack/echo/v4"
)

// writeEvent emits one server-sent event and flushes it to the client.
func writeEvent(c echo.Context, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
