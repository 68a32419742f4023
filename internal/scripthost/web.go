package scripthost

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/d5/tengo/v2"

	"github.com/chopper-cli/chopper/internal/validate"
)

const defaultFetchTimeout = 10 * time.Second

// registerHTTP installs the HTTP fetch group. Reconcile profile only.
func registerHTTP(s *tengo.Script) error {
	if err := addFn(s, "web_fetch", webFetch); err != nil {
		return err
	}
	return addFn(s, "web_fetch_with", webFetchWith)
}

func webFetch(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 1); err != nil {
		return nil, err
	}
	return webFetchInternal(strObj("GET"), args[0], &tengo.Map{Value: map[string]tengo.Object{}}, strObj(""), intObj(defaultFetchTimeout.Milliseconds()))
}

func webFetchWith(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 5); err != nil {
		return nil, err
	}
	return webFetchInternal(args[0], args[1], args[2], args[3], args[4])
}

func webFetchInternal(methodObj, urlObj, headersObj, bodyObj, timeoutObj tengo.Object) (tengo.Object, error) {
	all := []tengo.Object{methodObj, urlObj, headersObj, bodyObj, timeoutObj}

	method, err := stringArg(all, 0, "method")
	if err != nil {
		return nil, err
	}
	method, err = validate.NotBlank("method", method)
	if err != nil {
		return nil, err
	}
	url, err := stringArg(all, 1, "url")
	if err != nil {
		return nil, err
	}
	url, err = validate.NotBlank("url", url)
	if err != nil {
		return nil, err
	}
	headerEntries, err := mapArg(all, 2, "headers")
	if err != nil {
		return nil, err
	}
	headers, err := stringEntries("headers", headerEntries)
	if err != nil {
		return nil, err
	}
	body, err := stringArg(all, 3, "body")
	if err != nil {
		return nil, err
	}
	if err := validate.NoNUL("body", body); err != nil {
		return nil, err
	}
	timeout, err := timeoutArg(all, 4, "timeout_ms")
	if err != nil {
		return nil, err
	}
	req, reqErr := http.NewRequest(method, url, strings.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("failed to build request: %w", reqErr)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: timeout}
	resp, doErr := client.Do(req)
	if doErr != nil {
		// Network-level failures come back as a result map, not a
		// fault, so hooks can branch on them.
		return mapObj(map[string]tengo.Object{
			"ok":      boolObj(false),
			"status":  intObj(0),
			"url":     strObj(url),
			"method":  strObj(method),
			"headers": mapObj(map[string]tengo.Object{}),
			"body":    strObj(""),
			"error":   strObj(doErr.Error()),
		}), nil
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}

	headersOut := map[string]tengo.Object{}
	for name := range resp.Header {
		headersOut[name] = strObj(resp.Header.Get(name))
	}

	status := int64(resp.StatusCode)
	return mapObj(map[string]tengo.Object{
		"ok":      boolObj(status >= 200 && status < 400),
		"status":  intObj(status),
		"url":     strObj(url),
		"method":  strObj(method),
		"headers": mapObj(headersOut),
		"body":    strObj(string(respBody)),
	}), nil
}
