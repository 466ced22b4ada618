package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const projectQuery = `
query($owner: String!, $number: Int!) {
  user(login: $owner) {
    projectV2(number: $number) { ...board }
  }
  organization(login: $owner) {
    projectV2(number: $number) { ...board }
  }
}
fragment board on ProjectV2 {
  id
  title
  fields(first: 50) {
    nodes {
      ... on ProjectV2Field { id name }
      ... on ProjectV2SingleSelectField { id name options { id name } }
    }
  }
}`

const addItemMutation = `
mutation($projectId: ID!, $contentId: ID!) {
  addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
    item { id }
  }
}`

const updateFieldMutation = `
mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $optionId: String!) {
  updateProjectV2ItemFieldValue(input: {
    projectId: $projectId,
    itemId: $itemId,
    fieldId: $fieldId,
    value: { singleSelectOptionId: $optionId }
  }) {
    projectV2Item { id }
  }
}`

// ErrProjectNotFound is returned when neither a user nor an organization
// owns the requested board.
var ErrProjectNotFound = errors.New("project not found")

// GraphQL posts a query and decodes its data into out. When the response
// carries errors, whatever data resolved is still decoded and the errors are
// returned as GraphQLErrors.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	reqBody := map[string]interface{}{"query": query, "variables": variables}
	respBody, _, err := c.doRequest(ctx, http.MethodPost, c.buildURL("/graphql", nil), reqBody)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}

	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors GraphQLErrors   `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("failed to parse graphql response: %w", err)
	}
	if out != nil && len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}
	if len(resp.Errors) > 0 {
		return resp.Errors
	}
	return nil
}

type projectNode struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Fields struct {
		Nodes []ProjectField `json:"nodes"`
	} `json:"fields"`
}

// FetchProject loads a board and its fields, probing owner as a user and as
// an organization at once. The "could not resolve" error for the side that
// does not exist is expected and ignored.
func (c *Client) FetchProject(ctx context.Context, owner string, number int) (*Project, error) {
	var data struct {
		User *struct {
			ProjectV2 *projectNode `json:"projectV2"`
		} `json:"user"`
		Organization *struct {
			ProjectV2 *projectNode `json:"projectV2"`
		} `json:"organization"`
	}

	err := c.GraphQL(ctx, projectQuery, map[string]interface{}{"owner": owner, "number": number}, &data)
	var gqlErrs GraphQLErrors
	if errors.As(err, &gqlErrs) {
		if remaining := gqlErrs.Without("Could not resolve to a User", "Could not resolve to an Organization"); len(remaining) > 0 {
			return nil, remaining
		}
	} else if err != nil {
		return nil, err
	}

	var node *projectNode
	switch {
	case data.User != nil && data.User.ProjectV2 != nil:
		node = data.User.ProjectV2
	case data.Organization != nil && data.Organization.ProjectV2 != nil:
		node = data.Organization.ProjectV2
	default:
		return nil, fmt.Errorf("%w: %s #%d", ErrProjectNotFound, owner, number)
	}

	project := &Project{ID: node.ID, Title: node.Title}
	for _, f := range node.Fields.Nodes {
		if f.ID == "" {
			continue
		}
		project.Fields = append(project.Fields, f)
	}
	return project, nil
}

// AddProjectItem puts an issue (by node id) on a board and returns the item id.
func (c *Client) AddProjectItem(ctx context.Context, projectID, contentID string) (string, error) {
	var data struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	vars := map[string]interface{}{"projectId": projectID, "contentId": contentID}
	if err := c.GraphQL(ctx, addItemMutation, vars, &data); err != nil {
		return "", fmt.Errorf("failed to add project item: %w", err)
	}
	if data.AddProjectV2ItemByID.Item.ID == "" {
		return "", fmt.Errorf("failed to add project item: empty item id")
	}
	return data.AddProjectV2ItemByID.Item.ID, nil
}

// SetProjectOption sets a single-select field of a board item.
func (c *Client) SetProjectOption(ctx context.Context, projectID, itemID, fieldID, optionID string) error {
	vars := map[string]interface{}{
		"projectId": projectID,
		"itemId":    itemID,
		"fieldId":   fieldID,
		"optionId":  optionID,
	}
	if err := c.GraphQL(ctx, updateFieldMutation, vars, nil); err != nil {
		return fmt.Errorf("failed to set project field: %w", err)
	}
	return nil
}
