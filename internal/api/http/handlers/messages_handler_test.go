package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participantsApp() *fiber.App {
	app := fiber.New()
	app.Get("/messages", func(c *fiber.Ctx) error {
		a, b, err := conversationParticipants(c, 5)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"a": a, "b": b})
	})
	return app
}

func TestConversationParticipants(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{name: "peer of caller", query: "?with=9", status: http.StatusOK, body: `{"a":5,"b":9}`},
		{name: "explicit pair", query: "?a=2&b=3", status: http.StatusOK, body: `{"a":2,"b":3}`},
		{name: "bad peer", query: "?with=x", status: http.StatusBadRequest},
		{name: "half a pair", query: "?a=2", status: http.StatusBadRequest},
		{name: "nothing", query: "", status: http.StatusBadRequest},
	}

	app := participantsApp()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/messages"+tc.query, nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.body != "" {
				raw, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.JSONEq(t, tc.body, string(raw))
			}
		})
	}
}
