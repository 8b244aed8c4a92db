package kserve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestBuildService(t *testing.T) {
	m := NewSubjectModel("mistral-7b", "hf://mistralai/Mistral-7B-Instruct-v0.3")
	m.Group = "search_1a2b3c4d"
	m.RuntimeArgs = []string{"--max-model-len=4096"}

	obj, err := buildService(m, "evals").toObject()
	require.NoError(t, err)

	assert.Equal(t, apiVersion, obj.GetAPIVersion())
	assert.Equal(t, kind, obj.GetKind())
	assert.Equal(t, "mistral-7b", obj.GetName())
	assert.Equal(t, "evals", obj.GetNamespace())
	assert.Equal(t, map[string]string{
		labelManagedBy: managedBy,
		labelName:      "mistral-7b",
		labelGroup:     "search-1a2b3c4d",
	}, obj.GetLabels())

	uri, _, err := unstructured.NestedString(obj.Object, "spec", "predictor", "model", "storageUri")
	require.NoError(t, err)
	assert.Equal(t, m.ModelURI, uri)

	format, _, err := unstructured.NestedString(obj.Object, "spec", "predictor", "model", "modelFormat", "name")
	require.NoError(t, err)
	assert.Equal(t, "vLLM", format)

	rt, _, err := unstructured.NestedString(obj.Object, "spec", "predictor", "model", "runtime")
	require.NoError(t, err)
	assert.Equal(t, DefaultRuntime, rt)

	gpus, found, err := unstructured.NestedString(obj.Object, "spec", "predictor", "model", "resources", "limits", "nvidia.com/gpu")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", gpus)

	args, _, err := unstructured.NestedStringSlice(obj.Object, "spec", "predictor", "model", "args")
	require.NoError(t, err)
	assert.Equal(t, m.RuntimeArgs, args)
}

func TestBuildServiceWithoutGPUOrGroup(t *testing.T) {
	m := SubjectModel{Name: "cpu", ModelURI: "hf://org/tiny"}

	obj, err := buildService(m, "evals").toObject()
	require.NoError(t, err)

	_, found, _ := unstructured.NestedMap(obj.Object, "spec", "predictor", "model", "resources", "limits")
	assert.False(t, found)
	_, hasGroup := obj.GetLabels()[labelGroup]
	assert.False(t, hasGroup)
	_, found, _ = unstructured.NestedString(obj.Object, "spec", "predictor", "model", "runtime")
	assert.False(t, found)
}

func TestResourceName(t *testing.T) {
	long := "trailing-dash-after-truncation-" + strings.Repeat("abcdefghij", 6)
	tests := []struct {
		in   string
		want string
	}{
		{"mistral-7b", "mistral-7b"},
		{"Mistral-7B", "mistral-7b"},
		{"org/model@v1", "org-model-v1"},
		{"_leading", "m--leading"},
		{"7b", "m-7b"},
		{"search_w02:eval", "search-w02-eval"},
		{"drop!these?", "dropthese"},
		{long, strings.TrimRight(long[:63], "-")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, resourceName(tt.in))
		})
	}
}

func TestDeploymentEndpoints(t *testing.T) {
	assert.Equal(t, "http://mistral-7b.evals.svc.cluster.local/v1", ClusterBaseURL("Mistral_7b", "evals"))

	d := Deployment{BaseURL: "http://m.evals.example.com/v1/"}
	assert.Equal(t, "http://m.evals.example.com/v1/chat/completions", d.ChatEndpoint())
	assert.Empty(t, Deployment{}.ChatEndpoint())
}

func TestServiceReadiness(t *testing.T) {
	tests := []struct {
		name    string
		obj     *unstructured.Unstructured
		ready   bool
		message string
	}{
		{name: "ready", obj: serviceObject("a", "ns", true), ready: true},
		{name: "pending", obj: serviceObject("a", "ns", false), message: "pending: waiting for model download"},
		{
			name: "no status",
			obj: &unstructured.Unstructured{Object: map[string]interface{}{
				"apiVersion": apiVersion,
				"kind":       kind,
				"metadata":   map[string]interface{}{"name": "a"},
			}},
			message: "pending",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := parseService(tt.obj)
			require.NoError(t, err)
			d := svc.deployment()
			assert.Equal(t, tt.ready, d.Ready)
			assert.Equal(t, tt.message, d.Message)
		})
	}
}
