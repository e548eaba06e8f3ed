package gateway

import (
	"testing"
)

// TestParseServices はPROXY_SERVICES解析のテスト。
func TestParseServices(t *testing.T) {
	t.Parallel()

	t.Run("複数サービスを解析する", func(t *testing.T) {
		t.Parallel()

		services := parseServices("/scan=http://search:8181,/export=http://export:8282")
		if len(services) != 2 {
			t.Fatalf("サービス数: got %d, want 2", len(services))
		}
		if services[0].deployPath != "/scan" || services[0].baseURL != "http://search:8181" {
			t.Errorf("services[0]: got %+v", services[0])
		}
		if services[1].deployPath != "/export" || services[1].baseURL != "http://export:8282" {
			t.Errorf("services[1]: got %+v", services[1])
		}
	})

	t.Run("先頭スラッシュと末尾スラッシュを正規化する", func(t *testing.T) {
		t.Parallel()

		services := parseServices("scan=http://search:8181/")
		if len(services) != 1 {
			t.Fatalf("サービス数: got %d, want 1", len(services))
		}
		if services[0].deployPath != "/scan" {
			t.Errorf("deployPath: got %q, want %q", services[0].deployPath, "/scan")
		}
		if services[0].baseURL != "http://search:8181" {
			t.Errorf("baseURL: got %q, want %q", services[0].baseURL, "http://search:8181")
		}
	})

	t.Run("空文字列と不正な項目は無視する", func(t *testing.T) {
		t.Parallel()

		if services := parseServices(""); services != nil {
			t.Errorf("空文字列からサービスが生成された: %+v", services)
		}
		if services := parseServices("no-equals-sign,=missing-path,/path="); len(services) != 0 {
			t.Errorf("不正な項目からサービスが生成された: %+v", services)
		}
	})

	t.Run("項目前後の空白を許容する", func(t *testing.T) {
		t.Parallel()

		services := parseServices(" /scan=http://search:8181 , /export=http://export:8282 ")
		if len(services) != 2 {
			t.Fatalf("サービス数: got %d, want 2", len(services))
		}
	})
}
