// ABOUTME: Salesforce REST client for contact queries
// ABOUTME: Runs SOQL against the org's instance URL and follows result pagination
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIVersion is the REST API version used for queries.
const APIVersion = "v59.0"

const contactQuery = "SELECT Id, FirstName, LastName, Email, Phone, MobilePhone, DoNotCall, Account.Name FROM Contact ORDER BY CreatedDate ASC"

// Contact is one Salesforce Contact record.
type Contact struct {
	ID          string `json:"Id"`
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	Email       string `json:"Email"`
	Phone       string `json:"Phone"`
	MobilePhone string `json:"MobilePhone"`
	DoNotCall   bool   `json:"DoNotCall"`
	Account     *struct {
		Name string `json:"Name"`
	} `json:"Account"`
}

// BestPhone prefers the main phone over the mobile one.
func (c *Contact) BestPhone() string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.MobilePhone
}

func (c *Contact) AccountName() string {
	if c.Account == nil {
		return ""
	}
	return c.Account.Name
}

// Client queries one org. The http client must attach OAuth credentials,
// e.g. one built by oauth2.NewClient.
type Client struct {
	instanceURL string
	http        *http.Client
}

func NewClient(instanceURL string, httpClient *http.Client) *Client {
	return &Client{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		http:        httpClient,
	}
}

type queryResponse struct {
	Done           bool            `json:"done"`
	NextRecordsURL string          `json:"nextRecordsUrl"`
	Records        json.RawMessage `json:"records"`
}

// Contacts returns every Contact visible to the connected user.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	next := "/services/data/" + APIVersion + "/query?q=" + url.QueryEscape(contactQuery)

	var contacts []Contact
	for next != "" {
		var page queryResponse
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}

		var records []Contact
		if err := json.Unmarshal(page.Records, &records); err != nil {
			return nil, fmt.Errorf("failed to decode contacts: %w", err)
		}
		contacts = append(contacts, records...)

		if page.Done {
			break
		}
		next = page.NextRecordsURL
	}
	return contacts, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.instanceURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("salesforce request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("salesforce query failed: status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
