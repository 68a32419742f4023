package scripthost

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/d5/tengo/v2"

	"github.com/chopper-cli/chopper/internal/validate"
)

// registerSOAP installs the SOAP POST helper group. Reconcile profile
// only.
func registerSOAP(s *tengo.Script) error {
	if err := addFn(s, "soap_envelope", soapEnvelope); err != nil {
		return err
	}
	return addFn(s, "soap_call", soapCall)
}

func soapEnvelope(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 1); err != nil {
		return nil, err
	}
	bodyXML, err := stringArg(args, 0, "body_xml")
	if err != nil {
		return nil, err
	}
	if err := validate.NoNUL("body_xml", bodyXML); err != nil {
		return nil, err
	}
	envelope := `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    ` + bodyXML + `
  </soap:Body>
</soap:Envelope>`
	return strObj(envelope), nil
}

func soapCall(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 4); err != nil {
		return nil, err
	}
	url, err := stringArg(args, 0, "url")
	if err != nil {
		return nil, err
	}
	url, err = validate.NotBlank("url", url)
	if err != nil {
		return nil, err
	}
	action, err := stringArg(args, 1, "action")
	if err != nil {
		return nil, err
	}
	if err := validate.NoNUL("action", action); err != nil {
		return nil, err
	}
	bodyXML, err := stringArg(args, 2, "body_xml")
	if err != nil {
		return nil, err
	}
	if err := validate.NoNUL("body_xml", bodyXML); err != nil {
		return nil, err
	}
	timeout, err := timeoutArg(args, 3, "timeout_ms")
	if err != nil {
		return nil, err
	}
	req, reqErr := http.NewRequest(http.MethodPost, url, strings.NewReader(bodyXML))
	if reqErr != nil {
		return nil, fmt.Errorf("failed to build SOAP request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	client := &http.Client{Timeout: timeout}
	resp, doErr := client.Do(req)
	if doErr != nil {
		return mapObj(map[string]tengo.Object{
			"ok":         boolObj(false),
			"status":     intObj(0),
			"body":       strObj(""),
			"fault":      boolObj(false),
			"fault_text": strObj(""),
			"error":      strObj(doErr.Error()),
		}), nil
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read SOAP response: %w", readErr)
	}

	faultText, hasFault := extractFaultText(string(respBody))
	status := int64(resp.StatusCode)
	return mapObj(map[string]tengo.Object{
		"ok":         boolObj(status >= 200 && status < 400),
		"status":     intObj(status),
		"body":       strObj(string(respBody)),
		"fault":      boolObj(hasFault),
		"fault_text": strObj(faultText),
	}), nil
}

// extractFaultText pulls the human-readable fault reason out of a SOAP
// fault body, accepting both 1.1 (faultstring) and 1.2 (Reason/Text)
// shapes.
func extractFaultText(body string) (string, bool) {
	decoder := xml.NewDecoder(strings.NewReader(body))
	inFault := false
	currentTag := ""
	for {
		tok, err := decoder.Token()
		if err != nil {
			return "", false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			currentTag = strings.ToLower(t.Name.Local)
			if strings.HasSuffix(currentTag, "fault") {
				inFault = true
			}
		case xml.EndElement:
			if strings.HasSuffix(strings.ToLower(t.Name.Local), "fault") {
				inFault = false
			}
			currentTag = ""
		case xml.CharData:
			if !inFault {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if strings.HasSuffix(currentTag, "faultstring") ||
				strings.HasSuffix(currentTag, "reason") ||
				strings.HasSuffix(currentTag, "text") {
				return text, true
			}
		}
	}
}
