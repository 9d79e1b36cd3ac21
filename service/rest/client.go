package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/cpuview/cpuview/pkg/logflags"
	"github.com/cpuview/cpuview/service"
	"github.com/cpuview/cpuview/service/api"
)

// DefaultBaseURL is the address of a backend running on the local machine.
const DefaultBaseURL = "http://127.0.0.1:8000/api"

// Client is a REST service.Client.
type Client struct {
	base       string
	httpClient *http.Client
	log        logflags.Logger
}

// ClientError is an error from the backend.
type ClientError struct {
	// Message is the response body.
	Message string
	// Status is the HTTP status of the response.
	Status string
}

func (e *ClientError) Error() string {
	if e.Message == "" {
		return e.Status
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Ensure the implementation satisfies the interface.
var _ service.Client = &Client{}

// NewClient creates a new Client for the backend at base. An empty base
// uses DefaultBaseURL.
func NewClient(base string) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		base:       strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{},
		log:        logflags.RESTLogger(),
	}
}

// BaseURL returns the URL all endpoint paths are relative to.
func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) LoadSession(ctx context.Context, path string) (*api.LoadSessionOut, error) {
	var out api.LoadSessionOut
	if err := c.doPOST(ctx, "/session/load", api.LoadSessionIn{Path: path}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return &out, &api.ServiceError{Op: "session/load", Message: out.Error, Details: out.Details}
	}
	return &out, nil
}

func (c *Client) StopSession(ctx context.Context) error {
	return c.doStatus(ctx, "/session/stop", struct{}{})
}

func (c *Client) Disassemble(ctx context.Context, in api.DisassembleIn) (*api.DisassembleOut, error) {
	var out api.DisassembleOut
	if err := c.doPOST(ctx, "/memory/disassemble", in, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return &out, &api.ServiceError{Op: "memory/disassemble", Message: out.Error}
	}
	if out.Seq == 0 {
		out.Seq = in.Seq
	}
	return &out, nil
}

func (c *Client) WriteMemory(ctx context.Context, in api.WriteMemoryIn) (*api.WriteMemoryOut, error) {
	var out api.WriteMemoryOut
	if err := c.doPOST(ctx, "/memory/write", in, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return &out, &api.ServiceError{Op: "memory/write", Message: out.Error}
	}
	return &out, nil
}

func (c *Client) RevertMemory(ctx context.Context, addr string) (*api.RevertMemoryOut, error) {
	var out api.RevertMemoryOut
	if err := c.doPOST(ctx, "/memory/revert", api.RevertMemoryIn{Address: addr}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return &out, &api.ServiceError{Op: "memory/revert", Message: out.Error}
	}
	return &out, nil
}

func (c *Client) SaveComment(ctx context.Context, addr, comment string) error {
	var out api.StatusOut
	if err := c.doPOST(ctx, "/session/comment", api.CommentIn{Address: addr, Comment: comment}, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return &api.ServiceError{Op: "session/comment", Message: out.Error}
	}
	if out.Status != api.StatusSaved {
		return &api.ServiceError{Op: "session/comment", Message: fmt.Sprintf("unexpected status %q", out.Status)}
	}
	return nil
}

func (c *Client) ResetDatabase(ctx context.Context, all bool) (*api.StatusOut, error) {
	path := "/database/reset"
	if all {
		path = "/database/reset_all"
	}
	var out api.StatusOut
	if err := c.doPOST(ctx, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return &out, &api.ServiceError{Op: strings.TrimPrefix(path, "/"), Message: out.Error}
	}
	return &out, nil
}

func (c *Client) GetSettings(ctx context.Context) (map[string]string, error) {
	var out api.SettingsOut
	if err := c.doGET(ctx, "/settings", &out); err != nil {
		return nil, err
	}
	return out.Strings(), nil
}

func (c *Client) SaveSetting(ctx context.Context, key, value string) error {
	return c.doStatus(ctx, "/settings", api.SettingIn{Key: key, Value: value})
}

func (c *Client) Control(ctx context.Context, cmd service.ControlCommand) error {
	return c.doStatus(ctx, "/control/"+string(cmd), struct{}{})
}

func (c *Client) ListTargets(ctx context.Context) ([]api.TargetFile, error) {
	var out api.TargetsOut
	if err := c.doGET(ctx, "/targets/list", &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return out.Files, &api.ServiceError{Op: "targets/list", Message: out.Error}
	}
	return out.Files, nil
}

func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var out api.VersionOut
	if err := c.doGET(ctx, "/version", &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// doStatus posts in to path and checks the error field of the generic
// status response.
func (c *Client) doStatus(ctx context.Context, path string, in interface{}) error {
	var out api.StatusOut
	if err := c.doPOST(ctx, path, in, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return &api.ServiceError{Op: strings.TrimPrefix(path, "/"), Message: out.Error}
	}
	return nil
}

func (c *Client) url(path string) string {
	return c.base + path
}

// doGET performs an HTTP GET to path and stores the resulting API object in
// obj.
func (c *Client) doGET(ctx context.Context, path string, obj interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, path, obj)
}

// doPOST performs an HTTP POST to path, sending out as the body and storing
// the resulting API object in in.
func (c *Client) doPOST(ctx context.Context, path string, out interface{}, in interface{}) error {
	body, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if logflags.REST() {
		c.log.Debugf("REQ POST %s %s", path, body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, path, in)
}

func (c *Client) do(req *http.Request, path string, obj interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	contents, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", req.Method, path, err)
	}
	if logflags.REST() {
		c.log.Debugf("RES %s %s %s", path, resp.Status, contents)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ClientError{Message: strings.TrimSpace(string(contents)), Status: resp.Status}
	}

	if err := json.Unmarshal(contents, obj); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", req.Method, path, err)
	}
	return nil
}
