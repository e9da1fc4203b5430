package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
)

const (
	DICTIONARY_TIMEOUT     = 3 * time.Second
	DICTIONARY_RETRY_COUNT = 2
)

// Dictionary asks a remote word list whether a guess is a real word.
// GET <url>?word=<word>&length=<n> answers 200 for known words and 404 for
// unknown ones.
type Dictionary struct {
	url    string
	client *httpclient.Client
}

func NewDictionary(baseURL string) *Dictionary {
	backoff := heimdall.NewConstantBackoff(100*time.Millisecond, 50*time.Millisecond)
	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(DICTIONARY_TIMEOUT),
		httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		httpclient.WithRetryCount(DICTIONARY_RETRY_COUNT),
	)
	return &Dictionary{baseURL, client}
}

func (d *Dictionary) IsValidWord(ctx context.Context, word string, length int) (bool, error) {
	if !isLetters(word, length) {
		return false, nil
	}

	q := url.Values{}
	q.Set("word", word)
	q.Set("length", strconv.Itoa(length))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}

	res, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("dictionary: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("dictionary: unexpected status %d", res.StatusCode)
}

// LetterValidator accepts any word made of letters. Used when no dictionary
// is configured.
type LetterValidator struct{}

func (LetterValidator) IsValidWord(ctx context.Context, word string, length int) (bool, error) {
	return isLetters(word, length), nil
}

func isLetters(word string, length int) bool {
	n := 0
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
		n++
	}
	return n == length
}
