package cloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

const DefaultStateTTL = 10 * time.Minute

// Exchanger is the OAuth2 half of the cloud client.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Uploader stores a file with the user's credential and returns a shareable link.
type Uploader interface {
	Upload(ctx context.Context, token *oauth2.Token, path, name string) (string, error)
}

type stateClaims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"uid"`
	Nonce  string `json:"nonce"`
}

// pendingAuth is the state issued to a user and not yet redeemed.
type pendingAuth struct {
	Nonce string
	State string
}

type GateOptions struct {
	Exchanger Exchanger
	Uploader  Uploader
	Secret    []byte
	StateTTL  time.Duration
}

// Gate guards cloud export behind a two-phase OAuth flow.
// A state token is signed, bound to one user and redeemable once.
type Gate struct {
	exchanger Exchanger
	uploader  Uploader
	secret    []byte
	stateTTL  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	pending *ttlworker.Cache[int64, pendingAuth]
}

func NewGate(opts GateOptions) (*Gate, error) {
	if opts.Exchanger == nil || opts.Uploader == nil {
		return nil, errors.New("cloud gate needs an exchanger and an uploader")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("cloud gate needs a state signing secret")
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultStateTTL
	}
	return &Gate{
		exchanger: opts.Exchanger,
		uploader:  opts.Uploader,
		secret:    opts.Secret,
		stateTTL:  opts.StateTTL,
		now:       time.Now,
		pending:   ttlworker.NewCache[int64, pendingAuth](opts.StateTTL),
	}, nil
}

// Begin issues a fresh state for userID and returns the authorization URL.
// A later Begin replaces the pending state of the same user.
func (g *Gate) Begin(userID int64) (string, error) {
	nonce := tool.GenerateRandomUUID()
	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.stateTTL)),
		},
		UserID: userID,
		Nonce:  nonce,
	})
	state, err := token.SignedString(g.secret)
	if err != nil {
		return "", types.ExternalServiceError("cannot sign authorization state", err)
	}

	g.mu.Lock()
	g.pending.Set(userID, pendingAuth{Nonce: nonce, State: state})
	g.mu.Unlock()

	tool.DefaultLogger.Debugf("Issued authorization state for user %d", userID)
	return g.exchanger.AuthCodeURL(state), nil
}

// Complete redeems code for sess. An empty state falls back to the one issued to the user.
// The state is checked and consumed before the code is exchanged.
func (g *Gate) Complete(ctx context.Context, sess *store.Session, code, state string) error {
	if code == "" {
		return types.ValidationError("paste the authorization code", nil)
	}
	if err := g.redeem(sess.UserID(), state); err != nil {
		tool.DefaultLogger.Warnf("Rejected authorization for user %d: %v", sess.UserID(), err)
		return err
	}

	tok, err := g.exchanger.Exchange(ctx, code)
	if err != nil {
		return types.ExternalServiceError("authorization code exchange failed", err)
	}
	sess.SetToken(tok)
	tool.DefaultLogger.Infof("Cloud storage authorized for user %d", sess.UserID())
	return nil
}

func (g *Gate) redeem(userID int64, state string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.pending.Get(userID)
	if state == "" {
		state = p.State
	}
	if state == "" || p.Nonce == "" {
		return types.ExternalServiceError("no authorization in progress, choose cloud save again", types.ErrStateMismatch)
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return types.ExternalServiceError("authorization state is invalid or expired", fmt.Errorf("%w: %v", types.ErrStateMismatch, err))
	}
	if claims.UserID != userID || claims.Nonce != p.Nonce {
		return types.ExternalServiceError("authorization state does not match", types.ErrStateMismatch)
	}
	g.pending.Delete(userID)
	return nil
}

// Authorized reports whether sess can upload without phase one.
func (g *Gate) Authorized(sess *store.Session) bool {
	return sess.Token() != nil
}

// Export uploads the record with the stored credential.
func (g *Gate) Export(ctx context.Context, sess *store.Session, rec *types.FileRecord) (string, error) {
	tok := sess.Token()
	if tok == nil {
		return "", types.ValidationError("authorize cloud storage first", types.ErrNotAuthorized)
	}
	link, err := g.uploader.Upload(ctx, tok, rec.Path, rec.Name)
	if err != nil {
		var be *types.BotError
		if errors.As(err, &be) {
			return "", err
		}
		return "", types.ExternalServiceError("cloud upload failed", err)
	}
	tool.DefaultLogger.Infof("Uploaded %s for user %d", rec.Name, sess.UserID())
	return link, nil
}
