package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/jacq-os/jacq/internal/memory"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// OllamaEmbedder uses Ollama's embedding API. It is safe for concurrent use.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   atomic.Int64
	client *http.Client
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllamaEmbedder creates an embedder using Ollama's API. dims is a hint;
// it is replaced by the length of the first vector Ollama returns.
func NewOllamaEmbedder(url, model string, dims int) *OllamaEmbedder {
	o := &OllamaEmbedder{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	o.dims.Store(int64(dims))
	return o
}

func (o *OllamaEmbedder) Model() string   { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return int(o.dims.Load()) }

// Embed sends text to Ollama's embed endpoint and returns the embedding vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, respBody)
	}

	var result ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	o.dims.Store(int64(len(result.Embeddings[0])))
	return result.Embeddings[0], nil
}

// ProbeOllama checks if Ollama is reachable and the embedding model is available.
func ProbeOllama(url, model string) bool {
	client := &http.Client{Timeout: 3 * time.Second}
	reqBody, _ := json.Marshal(ollamaEmbedRequest{Model: model, Input: "probe"})
	resp, err := client.Post(strings.TrimRight(url, "/")+"/api/embed", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// OpenAIEmbedder uses an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder for the given model. An empty baseURL
// uses the public OpenAI endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dims int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dims:   dims,
	}
}

func (o *OpenAIEmbedder) Model() string   { return "openai:" + o.model }
func (o *OpenAIEmbedder) Dimensions() int { return o.dims }

// Embed requests a single embedding and widens it to float64.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embeddings")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float64, len(raw))
	for i, v := range raw {
		vec[i] = float64(v)
	}
	return vec, nil
}

// TFIDFEmbedder generates TF-IDF bag-of-words embeddings as a fallback.
type TFIDFEmbedder struct {
	vocab []string           // ordered vocabulary (top terms by doc frequency)
	idf   map[string]float64 // inverse document frequency per term
	dims  int
	model string
}

// EntityDocument is the text embedded for an entity: its name, aliases and type.
func EntityDocument(e memory.Entity) string {
	parts := append([]string{e.Name}, e.Aliases...)
	parts = append(parts, string(e.Type))
	return strings.Join(parts, " ")
}

// NewTFIDFEmbedder builds a TF-IDF embedder whose vocabulary comes from the
// owner's entity documents.
func NewTFIDFEmbedder(ctx context.Context, entities EntityStore, ownerID string, maxTerms int) (*TFIDFEmbedder, error) {
	list, err := entities.ListEntities(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entities for tfidf: %w", err)
	}
	docs := make([]string, 0, len(list))
	for _, e := range list {
		docs = append(docs, EntityDocument(e))
	}
	return NewTFIDFEmbedderFromDocs(docs, maxTerms), nil
}

// NewTFIDFEmbedderFromDocs builds a TF-IDF embedder over the given documents.
func NewTFIDFEmbedderFromDocs(docs []string, maxTerms int) *TFIDFEmbedder {
	if maxTerms <= 0 {
		maxTerms = 512
	}

	// Build document frequency
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	// Sort terms by document frequency (descending), take top maxTerms
	type termFreq struct {
		term string
		freq int
	}
	var terms []termFreq
	for t, f := range df {
		terms = append(terms, termFreq{t, f})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})

	dims := maxTerms
	if len(terms) < dims {
		dims = len(terms)
	}
	if dims == 0 {
		dims = 1 // minimum dimension to avoid zero-length vectors
	}

	vocab := make([]string, dims)
	idf := make(map[string]float64)
	numDocs := float64(len(docs))
	if numDocs == 0 {
		numDocs = 1
	}

	for i := 0; i < dims && i < len(terms); i++ {
		vocab[i] = terms[i].term
		// IDF = log(N / df) + 1 (smoothed)
		idf[vocab[i]] = math.Log(numDocs/float64(terms[i].freq)) + 1.0
	}

	return &TFIDFEmbedder{
		vocab: vocab,
		idf:   idf,
		dims:  dims,
		model: vocabularyModel(vocab),
	}
}

// vocabularyModel names a TF-IDF model after its vocabulary, so vectors built
// over a different vocabulary are treated as stale.
func vocabularyModel(vocab []string) string {
	h := fnv.New64a()
	for _, term := range vocab {
		h.Write([]byte(term))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("tfidf:%016x", h.Sum64())[:14]
}

func (t *TFIDFEmbedder) Model() string   { return t.model }
func (t *TFIDFEmbedder) Dimensions() int { return t.dims }

// Embed generates a normalized TF-IDF vector for the given text.
func (t *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return make([]float64, t.dims), nil
	}

	// Count term frequencies
	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}

	// Build TF-IDF vector
	vec := make([]float64, t.dims)
	maxTF := 0
	for _, c := range tf {
		if c > maxTF {
			maxTF = c
		}
	}

	for i, term := range t.vocab {
		count := tf[term]
		if count == 0 {
			continue
		}
		// Augmented TF to prevent bias towards longer documents
		augTF := 0.5 + 0.5*float64(count)/float64(maxTF)
		idf := t.idf[term]
		if idf == 0 {
			idf = 1.0
		}
		vec[i] = augTF * idf
	}

	// L2 normalize
	normalize(vec)
	return vec, nil
}

// tokenize lowercases text and splits it on anything that is not a letter,
// digit, hyphen or underscore. Tokens of a single rune are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Assumes vectors are already L2-normalized for embeddings from Ollama;
// works correctly on unnormalized vectors too.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
