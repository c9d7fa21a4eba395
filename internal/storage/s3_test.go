package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3(t *testing.T, deleteResult string) (*S3Service, *[]string) {
	t.Helper()
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !r.URL.Query().Has("delete") {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, deleteResult)
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
	})
	return NewS3Service(client), &bodies
}

func TestDeleteObjects(t *testing.T) {
	svc, bodies := newTestS3(t, `<?xml version="1.0" encoding="UTF-8"?>
<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)

	err := svc.DeleteObjects(context.Background(), "moods", []string{"snap/moods-1.csv", "snap/moods-2.csv"})
	require.NoError(t, err)
	require.Len(t, *bodies, 1)
	assert.True(t, strings.Contains((*bodies)[0], "snap/moods-2.csv"))
}

func TestDeleteObjectsReportsRefusedKeys(t *testing.T) {
	svc, _ := newTestS3(t, `<?xml version="1.0" encoding="UTF-8"?>
<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Error><Key>snap/moods-1.csv</Key><Code>AccessDenied</Code><Message>Access Denied</Message></Error>
</DeleteResult>`)

	err := svc.DeleteObjects(context.Background(), "moods", []string{"snap/moods-1.csv", "snap/moods-2.csv"})
	require.ErrorIs(t, err, ErrDeleteFailed)
	assert.Contains(t, err.Error(), "snap/moods-1.csv")
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestDeleteObjectsRequiresBucket(t *testing.T) {
	svc, bodies := newTestS3(t, "")
	require.Error(t, svc.DeleteObjects(context.Background(), "", []string{"a"}))
	assert.Empty(t, *bodies)
}
