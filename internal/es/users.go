package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"

	"github.com/Skotchmaster/gamelog/internal/models"
)

// UserDoc is what the users index stores. Password hashes never leave the database.
type UserDoc struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	Banned        bool      `json:"banned"`
	CreatedAt     time.Time `json:"created_at"`
}

func docFromUser(u *models.User) UserDoc {
	return UserDoc{
		ID:            u.ID.String(),
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		Banned:        u.Banned,
		CreatedAt:     u.CreatedAt,
	}
}

func (d UserDoc) toUser() models.User {
	id, _ := uuid.Parse(d.ID)
	return models.User{
		ID:            id,
		Username:      d.Username,
		Email:         d.Email,
		Role:          d.Role,
		EmailVerified: d.EmailVerified,
		Banned:        d.Banned,
		CreatedAt:     d.CreatedAt,
	}
}

type UserIndex struct {
	ES    *elasticsearch.Client
	Index string
}

func NewUserIndex(client *elasticsearch.Client, index string) *UserIndex {
	return &UserIndex{ES: client, Index: index}
}

func (x *UserIndex) IndexUser(ctx context.Context, u *models.User) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(docFromUser(u)); err != nil {
		return fmt.Errorf("encode user doc: %w", err)
	}
	res, err := x.ES.Index(
		x.Index,
		&buf,
		x.ES.Index.WithContext(ctx),
		x.ES.Index.WithDocumentID(u.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("index user: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index user", res.Status(), res.Body)
	}
	return nil
}

func (x *UserIndex) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := x.ES.Delete(x.Index, id.String(), x.ES.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete user doc: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return responseError("delete user doc", res.Status(), res.Body)
	}
	return nil
}

func (x *UserIndex) SearchUsers(ctx context.Context, query string, from, size int) (int64, []models.User, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"username^2", "email"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("encode search: %w", err)
	}

	res, err := x.ES.Search(
		x.ES.Search.WithContext(ctx),
		x.ES.Search.WithIndex(x.Index),
		x.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search users: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, responseError("search users", res.Status(), res.Body)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source UserDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("decode search response: %w", err)
	}

	users := make([]models.User, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		users[i] = hit.Source.toUser()
	}
	return r.Hits.Total.Value, users, nil
}

func responseError(op, status string, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 4096))
	return fmt.Errorf("%s: elasticsearch %s: %s", op, status, b)
}
