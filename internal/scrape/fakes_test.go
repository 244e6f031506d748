package scrape

import "context"

type fakeTranscriptClient struct {
	transcript string
	err        error
}

func (f *fakeTranscriptClient) FetchTranscript(ctx context.Context, videoID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.transcript, nil
}

type fakeDocumentParser struct {
	text string
	err  error
}

func (f *fakeDocumentParser) Parse(ctx context.Context, contentType string, data []byte) (string, map[string]string, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.text, map[string]string{"contentType": contentType}, nil
}
