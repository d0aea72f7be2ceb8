package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"reviewloop.app/reviewd/internal/http/handler"
	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/service"
	"reviewloop.app/reviewd/internal/store"
)

var _ = Describe("ReviewHandler", func() {
	var (
		router *gin.Engine
		svc    *mockReviewService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockReviewService{}
		h := handler.NewReviewHandler(svc)
		router.POST("/reviews", h.Submit)
		router.POST("/reviews/repair", h.Repair)
		router.GET("/reviews/:id", h.Get)
		router.GET("/reviews/:id/chunks", h.Chunks)
		router.DELETE("/reviews/:id", h.Delete)
	})

	doJSON := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Submit", func() {
		It("returns 202 with the review id", func() {
			svc.submitFn = func(_ context.Context, in service.SubmitInput) (string, error) {
				Expect(in.Language).To(Equal("go"))
				return "123", nil
			}

			w := doJSON(http.MethodPost, "/reviews", map[string]string{"code": "x := 1", "language": "go"})

			Expect(w.Code).To(Equal(http.StatusAccepted))
			var resp map[string]string
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["review_id"]).To(Equal("123"))
			Expect(resp["status"]).To(Equal("queued"))
		})

		It("returns 400 when code is missing", func() {
			w := doJSON(http.MethodPost, "/reviews", map[string]string{"language": "go"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 413 when code exceeds the size limit", func() {
			svc.submitFn = func(_ context.Context, _ service.SubmitInput) (string, error) {
				return "", service.ErrCodeTooLarge
			}
			w := doJSON(http.MethodPost, "/reviews", map[string]string{"code": "big"})
			Expect(w.Code).To(Equal(http.StatusRequestEntityTooLarge))
		})

		It("returns 500 on service failure", func() {
			svc.submitFn = func(_ context.Context, _ service.SubmitInput) (string, error) {
				return "", errors.New("redis down")
			}
			w := doJSON(http.MethodPost, "/reviews", map[string]string{"code": "x"})
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Get", func() {
		It("returns the record with completion flag", func() {
			svc.statusFn = func(_ context.Context, id string) (*model.ReviewRecord, error) {
				Expect(id).To(Equal("7"))
				return &model.ReviewRecord{
					ID:     "7",
					Status: model.StatusCompleted,
					Chunks: []string{"SUMMARY: fine"},
					ParsedResponse: &model.ParsedReview{
						Summary: "fine", CleanCode: "ok",
					},
				}, nil
			}

			w := doJSON(http.MethodGet, "/reviews/7", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["is_complete"]).To(BeTrue())
			Expect(resp["chunks"]).To(HaveLen(1))
			Expect(resp["result"]).NotTo(BeNil())
		})

		It("returns 404 for unknown or expired reviews", func() {
			svc.statusFn = func(_ context.Context, _ string) (*model.ReviewRecord, error) {
				return nil, store.ErrReviewNotFound
			}
			w := doJSON(http.MethodGet, "/reviews/unknown", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Chunks", func() {
		It("passes the cursor through and returns new fragments", func() {
			svc.chunksSinceFn = func(_ context.Context, id string, last int) (*service.ChunkPage, error) {
				Expect(id).To(Equal("7"))
				Expect(last).To(Equal(2))
				return &service.ChunkPage{
					Status:      model.StatusProcessing,
					Fragments:   []service.ChunkFragment{{Index: 3, Text: "more"}},
					NextChunkID: 3,
				}, nil
			}

			w := doJSON(http.MethodGet, "/reviews/7/chunks?lastChunkId=2", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["next_chunk_id"]).To(BeEquivalentTo(3))
			Expect(resp["is_complete"]).To(BeFalse())
			Expect(resp["chunks"]).To(HaveLen(1))
		})

		It("defaults the cursor to -1", func() {
			svc.chunksSinceFn = func(_ context.Context, _ string, last int) (*service.ChunkPage, error) {
				Expect(last).To(Equal(-1))
				return &service.ChunkPage{NextChunkID: -1}, nil
			}
			w := doJSON(http.MethodGet, "/reviews/7/chunks", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("rejects a non-numeric cursor", func() {
			w := doJSON(http.MethodGet, "/reviews/7/chunks?lastChunkId=abc", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Repair", func() {
		It("answers 200 with the repaired result", func() {
			svc.repairFn = func(_ context.Context, rawText, language, reviewID string) service.RepairOutcome {
				Expect(rawText).To(Equal("broken text"))
				Expect(reviewID).To(Equal("9"))
				return service.RepairOutcome{Result: &model.ParsedReview{Summary: "saved", CleanCode: "x"}}
			}

			w := doJSON(http.MethodPost, "/reviews/repair", map[string]string{
				"raw_text": "broken text", "language": "go", "review_id": "9",
			})

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["success"]).To(BeTrue())
		})

		It("answers 200 with success=false when repair is exhausted", func() {
			svc.repairFn = func(_ context.Context, _, _, _ string) service.RepairOutcome {
				return service.RepairOutcome{Err: errors.New("repair exhausted")}
			}

			w := doJSON(http.MethodPost, "/reviews/repair", map[string]string{"raw_text": "junk"})

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["success"]).To(BeFalse())
			Expect(resp["error"]).To(ContainSubstring("repair exhausted"))
		})

		It("rejects a body without raw text", func() {
			w := doJSON(http.MethodPost, "/reviews/repair", map[string]string{"language": "go"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Delete", func() {
		It("returns 204 on success", func() {
			w := doJSON(http.MethodDelete, "/reviews/7", nil)
			Expect(w.Code).To(Equal(http.StatusNoContent))
		})

		It("returns 404 when the record is already gone", func() {
			svc.deleteFn = func(_ context.Context, _ string) error {
				return store.ErrReviewNotFound
			}
			w := doJSON(http.MethodDelete, "/reviews/7", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})
