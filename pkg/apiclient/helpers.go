package apiclient

import (
	"context"
	"fmt"
	"net/url"
)

// getResource performs a GET request to the given path and decodes the response
// body into a value of type T.
//
// Example:
//
//	info, err := getResource[SessionInfo](ctx, c, "/api/v1/sessions/abc")
func getResource[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var result T
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// createResource performs a POST request to the given path with the provided body
// and decodes the response into a value of type T.
func createResource[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	var result T
	if err := c.post(ctx, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// deleteResource performs a DELETE request to the given path.
func deleteResource(ctx context.Context, c *Client, path string) error {
	return c.delete(ctx, path, nil)
}

// resourcePath builds a resource path, escaping every argument as a path segment.
//
// Example:
//
//	path := resourcePath("/api/v1/sessions/%s", id)
func resourcePath(format string, args ...string) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}
	return fmt.Sprintf(format, escaped...)
}
