package onshape

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMassPropertiesPartStudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/partstudios/d/d1/w/w1/e/e1/massproperties", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("massAsGroup"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"bodies": map[string]interface{}{
				"-all-": map[string]interface{}{
					"mass":             []float64{1.5, 1.49, 1.51},
					"volume":           []float64{0.5},
					"periphery":        []float64{2.0},
					"principalInertia": []float64{0.1, 0.2, 0.3},
					"hasMass":          true,
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	props, err := client.GetMassProperties(context.Background(), "tok", "", "partstudios", "d1", "w", "w1", "e1", true)
	require.NoError(t, err)

	body, ok := props.AllBodies()
	require.True(t, ok)
	assert.Equal(t, 1.5, body.Mass[0])
	assert.True(t, body.HasMass)
	assert.Equal(t, 0.1, body.PrincipalInertia[0])
}

func TestGetMassPropertiesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.GetMassProperties(context.Background(), "tok", "", "partstudios", "d1", "w", "w1", "e1", true)
	assert.Error(t, err)
}

func TestFeatureListDerivedImportDetection(t *testing.T) {
	list := &FeatureList{Features: []Feature{
		{FeatureID: "f1", FeatureType: "newSketch"},
		{FeatureID: "f2", FeatureType: "importDerived"},
	}}
	assert.True(t, list.HasDerivedImport(""))
	assert.False(t, list.HasDerivedImport("f2"))

	clean := &FeatureList{Features: []Feature{
		{FeatureID: "f1", FeatureType: "extrude"},
	}}
	assert.False(t, clean.HasDerivedImport(""))
}

func TestGetFeatureListKeepsRawBody(t *testing.T) {
	raw := `{"features":[{"featureId":"f1","name":"Sketch 1","featureType":"newSketch"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(raw))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	list, err := client.GetFeatureList(context.Background(), "tok", "", "partstudios", "d1", "w", "w1", "e1")
	require.NoError(t, err)
	require.Len(t, list.Features, 1)
	assert.Equal(t, "Sketch 1", list.Features[0].Name)
	assert.JSONEq(t, raw, string(list.Raw))
}

func TestAssemblyDefinitionCounts(t *testing.T) {
	def := &AssemblyDefinition{
		RootAssembly: SubAssembly{
			Instances: []AssemblyInstance{{ID: "i1"}, {ID: "i2"}},
			Features:  []json.RawMessage{[]byte(`{}`)},
		},
		SubAssemblies: []SubAssembly{
			{
				Instances: []AssemblyInstance{{ID: "i3"}},
				Features:  []json.RawMessage{[]byte(`{}`), []byte(`{}`)},
			},
		},
	}
	assert.Equal(t, 3, def.MateFeatureCount())
	assert.Equal(t, []string{"i1", "i2", "i3"}, def.InstanceIDs())
}

func TestGetCurrentMicroversion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/d/d1/w/w1/currentmicroversion", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"microversion": "m123"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	mid, err := client.GetCurrentMicroversion(context.Background(), "tok", "", "d1", "w1")
	require.NoError(t, err)
	assert.Equal(t, "m123", mid)
}

func TestGetShadedViewDecodesImage(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4e, 0x47}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("viewMatrix"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"images": []string{base64.StdEncoding.EncodeToString(png)},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	got, err := client.GetShadedView(context.Background(), "tok", "", "partstudios", "d1", "m", "m1", "e1", "1,0,0,0,0,1,0,0,0,0,1,0", 128, 128)
	require.NoError(t, err)
	assert.Equal(t, png, got)
}

func TestInsertDerivedFeatureReturnsFeatureID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		feature := payload["feature"].(map[string]interface{})
		assert.Equal(t, "importDerived", feature["featureType"])
		json.NewEncoder(w).Encode(map[string]interface{}{
			"feature": map[string]string{"featureId": "fd1"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	id, err := client.InsertDerivedFeature(context.Background(), "tok", "", "d1", "w1", "e1", "sd", "sv", "se", "sm", "Imported parts")
	require.NoError(t, err)
	assert.Equal(t, "fd1", id)
}

func TestOAuthExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "authorization_code", q.Get("grant_type"))
		assert.Equal(t, "code1", q.Get("code"))
		assert.Equal(t, "cid", q.Get("client_id"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at",
			"refresh_token": "rt",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	client := NewOAuthClient(srv.URL, "cid", "secret")
	tok, err := client.ExchangeCode(context.Background(), "code1")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.False(t, tok.ExpiresAt.IsZero())
}
