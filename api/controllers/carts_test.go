package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/blendpoint-backend/api/middleware"
	"github.com/angelmondragon/blendpoint-backend/internal/cart"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
)

type stubCartService struct {
	cart.Service
	active    *models.Cart
	initCalls int
	lastSpec  cart.ItemSpec
	lastOwner cart.Owner
}

func (s *stubCartService) GetActive(_ context.Context, _ uuid.UUID, owner cart.Owner) (*models.Cart, error) {
	s.lastOwner = owner
	if s.active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeCartNotFound, "no active cart")
	}
	return s.active, nil
}

func (s *stubCartService) Init(_ context.Context, storeID uuid.UUID, owner cart.Owner) (*models.Cart, error) {
	s.initCalls++
	return &models.Cart{ID: uuid.New(), StoreID: storeID, CustomerID: owner.CustomerID, Status: enums.CartStatusActive}, nil
}

func (s *stubCartService) AddItem(_ context.Context, cartID uuid.UUID, owner cart.Owner, spec cart.ItemSpec) (*models.Cart, error) {
	s.lastSpec = spec
	s.lastOwner = owner
	return &models.Cart{ID: cartID, Status: enums.CartStatusActive}, nil
}

func cartRouter(svc cart.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/carts", CartInit(svc, nil))
	r.Post("/carts/{cartId}/items", CartAddItem(svc, nil))
	return r
}

func guestRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithCartSession(req.Context(), "guest-session"))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

func TestCartInitCreatesWhenNoActiveCart(t *testing.T) {
	svc := &stubCartService{}
	resp := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(resp, guestRequest(http.MethodPost, "/carts", `{"store_id":"`+uuid.NewString()+`"}`))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.initCalls != 1 {
		t.Fatalf("expected one init call, got %d", svc.initCalls)
	}
	if svc.lastOwner.SessionToken != "guest-session" {
		t.Fatalf("guest session not forwarded: %+v", svc.lastOwner)
	}
}

func TestCartInitReturnsExistingCart(t *testing.T) {
	existing := &models.Cart{ID: uuid.New(), Status: enums.CartStatusActive}
	svc := &stubCartService{active: existing}
	resp := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(resp, guestRequest(http.MethodPost, "/carts", `{"store_id":"`+uuid.NewString()+`"}`))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.initCalls != 0 {
		t.Fatalf("init should not run when a cart exists")
	}
	if !strings.Contains(resp.Body.String(), existing.ID.String()) {
		t.Fatalf("response does not carry existing cart id")
	}
}

func TestCartAddItemUnifiedCustomMix(t *testing.T) {
	svc := &stubCartService{}
	base := uuid.New()
	body := `{"item_type":"custom_mix","item_id":"` + base.String() + `","quantity":1,"configuration":{"modifiers":[]}}`

	resp := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(resp, guestRequest(http.MethodPost, "/carts/"+uuid.NewString()+"/items", body))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastSpec.Kind != enums.CartItemKindCustomMix {
		t.Fatalf("expected custom_mix kind, got %s", svc.lastSpec.Kind)
	}
	if svc.lastSpec.Configuration.BaseProductID == nil || *svc.lastSpec.Configuration.BaseProductID != base {
		t.Fatalf("item_id should become the base product")
	}
}

func TestCartAddItemLegacyAddons(t *testing.T) {
	svc := &stubCartService{}
	product := uuid.New()
	extra := uuid.New()
	body := `{"product_id":"` + product.String() + `","quantity":3,"addons":{"extras":["` + extra.String() + `"]}}`

	resp := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(resp, guestRequest(http.MethodPost, "/carts/"+uuid.NewString()+"/items", body))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	spec := svc.lastSpec
	if spec.Kind != enums.CartItemKindProduct || spec.ProductID == nil || *spec.ProductID != product {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if spec.Quantity != 3 || len(spec.Configuration.Extras) != 1 || spec.Configuration.Extras[0] != extra {
		t.Fatalf("addons not carried into configuration: %+v", spec.Configuration)
	}
}

func TestCartAddItemRejectsMixedShapes(t *testing.T) {
	svc := &stubCartService{}
	body := `{"item_type":"product","item_id":"` + uuid.NewString() + `","product_id":"` + uuid.NewString() + `","quantity":1}`

	resp := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(resp, guestRequest(http.MethodPost, "/carts/"+uuid.NewString()+"/items", body))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestCartAddItemRejectsUnknownKindAndZeroQuantity(t *testing.T) {
	cases := map[string]string{
		"unknown kind":  `{"item_type":"smoothie","item_id":"` + uuid.NewString() + `","quantity":1}`,
		"zero quantity": `{"product_id":"` + uuid.NewString() + `","quantity":0}`,
		"huge quantity": `{"product_id":"` + uuid.NewString() + `","quantity":1000000000}`,
		"no item":       `{"quantity":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			cartRouter(&stubCartService{}).ServeHTTP(resp, guestRequest(http.MethodPost, "/carts/"+uuid.NewString()+"/items", body))
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
		})
	}
}

func TestCartAddItemLeavesModifierBoundsToCalculator(t *testing.T) {
	svc := &stubCartService{}
	modifier := uuid.NewString()
	body := `{"product_id":"` + uuid.NewString() + `","quantity":1,"addons":{"modifiers":[{"modifier_id":"` + modifier + `","level":-1}]}}`

	resp := httptest.NewRecorder()
	cartRouter(svc).ServeHTTP(resp, guestRequest(http.MethodPost, "/carts/"+uuid.NewString()+"/items", body))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected body to reach the cart service, got %d", resp.Code)
	}
	mods := svc.lastSpec.Configuration.Modifiers
	if len(mods) != 1 || mods[0].Level != -1 || mods[0].ModifierID.String() != modifier {
		t.Fatalf("modifier selection not carried through: %+v", mods)
	}
}
