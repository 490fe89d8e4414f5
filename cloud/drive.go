package cloud

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/oauth2"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

const (
	DefaultUploadURL     = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart&fields=id,webViewLink"
	DefaultUploadTimeout = 2 * time.Minute
)

// OAuthExchanger adapts an oauth2.Config to Exchanger.
type OAuthExchanger struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

func NewOAuthConfig(cfg types.CloudConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
}

func (e *OAuthExchanger) AuthCodeURL(state string) string {
	return e.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("include_granted_scopes", "true"))
}

func (e *OAuthExchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return e.Config.Exchange(e.withClient(ctx), code)
}

func (e *OAuthExchanger) withClient(ctx context.Context) context.Context {
	if e.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.HTTPClient)
}

// DriveUploader creates files through the Drive v3 multipart upload endpoint.
type DriveUploader struct {
	URL        string
	Config     *oauth2.Config
	HTTPClient *http.Client
	Timeout    time.Duration
}

type driveFile struct {
	ID          string `json:"id"`
	WebViewLink string `json:"webViewLink"`
}

func (u *DriveUploader) Upload(ctx context.Context, token *oauth2.Token, path, name string) (string, error) {
	timeout := u.Timeout
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return "", types.ResourceError("cannot open file for upload", err)
	}
	defer f.Close()

	meta, err := sonic.Marshal(map[string]any{"name": name, "parents": []string{"root"}})
	if err != nil {
		return "", err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeRelated(mw, meta, f, contentTypeOf(name)))
	}()

	url := u.URL
	if url == "" {
		url = DefaultUploadURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	base := u.HTTPClient
	if base == nil {
		base = tool.GetHttpClient()
	}
	client := u.Config.Client(context.WithValue(ctx, oauth2.HTTPClient, base), token)
	resp, err := client.Do(req)
	if err != nil {
		pr.Close()
		return "", types.ExternalServiceError("cloud upload failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", types.ExternalServiceError("cannot read cloud response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", types.ExternalServiceError(fmt.Sprintf("cloud upload rejected with status %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}
	var created driveFile
	if err := sonic.Unmarshal(body, &created); err != nil {
		return "", types.ExternalServiceError("cannot parse cloud response", err)
	}
	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}
	if created.ID == "" {
		return "", types.ExternalServiceError("cloud response carries no file id", nil)
	}
	return "https://drive.google.com/file/d/" + created.ID + "/view", nil
}

// writeRelated writes the metadata part then the media part.
func writeRelated(mw *multipart.Writer, meta []byte, media io.Reader, contentType string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(meta); err != nil {
		return err
	}

	h = textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	part, err = mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, media); err != nil {
		return err
	}
	return mw.Close()
}

func contentTypeOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
