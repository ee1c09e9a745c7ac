package rules

// Builtin returns a fresh copy of the shipped rule set in priority order.
// The generic rule is last.
func Builtin() []*Rule {
	return []*Rule{
		DoubanBookRule(),
		DoubanMovieRule(),
		GitHubRepoRule(),
		GenericRule(),
	}
}

// GenericRule matches every URL and relies on base metadata only
func GenericRule() *Rule {
	return &Rule{
		ID:         GenericID,
		Name:       "Generic",
		URLPattern: CatchAllPattern,
		TagName:    "网页",
		Script: []string{
			`return [`,
			`  { name: "标题", type: PropType.Text, value: baseMeta.title },`,
			`  { name: "链接", type: PropType.Text, value: url, typeArgs: { subType: "link" } },`,
			`  { name: "封面", type: PropType.Text, value: baseMeta.thumbnail, typeArgs: { subType: "image" } },`,
			`  { name: "简介", type: PropType.Text, value: baseMeta.description },`,
			`].filter(p => p.value);`,
		},
		ContentScript: []string{
			`const main = document.querySelector("article") || document.querySelector("main") || document.body;`,
			`return main ? htmlToText(main.innerHTML) : "";`,
		},
		Enabled:       true,
		DownloadCover: false,
	}
}

// DoubanBookRule extracts book details from book.douban.com subject pages
func DoubanBookRule() *Rule {
	return &Rule{
		ID:         "doubanBook",
		Name:       "豆瓣读书",
		URLPattern: `/book\.douban\.com\/subject\/\d+/i`,
		TagName:    "书籍",
		Script: []string{
			`const info = document.querySelector("#info");`,
			`const text = info ? info.innerText : "";`,
			`const field = (label) => {`,
			`  const m = text.match(new RegExp(label + "\\s*[:：]\\s*([^\\n]+)"));`,
			`  return m ? m[1].trim() : "";`,
			`};`,
			`const title = document.querySelector("h1 span");`,
			`const rating = document.querySelector("strong.rating_num");`,
			`const cover = document.querySelector("#mainpic img");`,
			`const tags = document.querySelectorAll("#db-tags-section a.tag").map(a => a.textContent.trim());`,
			`return [`,
			`  { name: "书名", type: PropType.Text, value: title ? title.textContent.trim() : baseMeta.title },`,
			`  { name: "作者", type: PropType.Text, value: field("作者") },`,
			`  { name: "出版社", type: PropType.Text, value: field("出版社") },`,
			`  { name: "出版年", type: PropType.DateTime, value: field("出版年") },`,
			`  { name: "页数", type: PropType.Number, value: field("页数") },`,
			`  { name: "ISBN", type: PropType.Text, value: field("ISBN") },`,
			`  { name: "评分", type: PropType.Number, value: rating ? rating.textContent.trim() : "" },`,
			`  { name: "标签", type: PropType.TextChoices, value: tags },`,
			`  { name: "封面", type: PropType.Text, value: cover ? cover.src : baseMeta.thumbnail, typeArgs: { subType: "image" } },`,
			`  { name: "链接", type: PropType.Text, value: url, typeArgs: { subType: "link" } },`,
			`].filter(p => Array.isArray(p.value) ? p.value.length > 0 : p.value);`,
		},
		Enabled:       true,
		DownloadCover: true,
	}
}

// DoubanMovieRule extracts film details from movie.douban.com subject pages
func DoubanMovieRule() *Rule {
	return &Rule{
		ID:         "doubanMovie",
		Name:       "豆瓣电影",
		URLPattern: `/movie\.douban\.com\/subject\/\d+/i`,
		TagName:    "电影",
		Script: []string{
			`const texts = (sel) => document.querySelectorAll(sel).map(e => e.textContent.trim()).filter(Boolean);`,
			`const title = document.querySelector("h1 span[property='v:itemreviewed']");`,
			`const release = document.querySelector("span[property='v:initialReleaseDate']");`,
			`const runtime = document.querySelector("span[property='v:runtime']");`,
			`const rating = document.querySelector("strong[property='v:average']");`,
			`const cover = document.querySelector("#mainpic img");`,
			`return [`,
			`  { name: "片名", type: PropType.Text, value: title ? title.textContent.trim() : baseMeta.title },`,
			`  { name: "导演", type: PropType.Text, value: texts("a[rel='v:directedBy']").join(" / ") },`,
			`  { name: "类型", type: PropType.TextChoices, value: texts("span[property='v:genre']") },`,
			`  { name: "上映日期", type: PropType.DateTime, value: release ? (release.getAttribute("content") || "").slice(0, 10) : "" },`,
			`  { name: "片长", type: PropType.Number, value: runtime ? runtime.getAttribute("content") : "" },`,
			`  { name: "评分", type: PropType.Number, value: rating ? rating.textContent.trim() : "" },`,
			`  { name: "海报", type: PropType.Text, value: cover ? cover.src : baseMeta.thumbnail, typeArgs: { subType: "image" } },`,
			`  { name: "链接", type: PropType.Text, value: url, typeArgs: { subType: "link" } },`,
			`].filter(p => Array.isArray(p.value) ? p.value.length > 0 : p.value);`,
		},
		Enabled:       true,
		DownloadCover: true,
	}
}

// GitHubRepoRule extracts repository details from github.com repository roots
func GitHubRepoRule() *Rule {
	return &Rule{
		ID:         "githubRepo",
		Name:       "GitHub",
		URLPattern: `^https?://github\.com/[^/]+/[^/?#]+/?$`,
		TagName:    "GitHub",
		Script: []string{
			`const stars = document.querySelector("#repo-stars-counter-star");`,
			`const lang = document.querySelector("[itemprop='programmingLanguage']");`,
			`const topics = document.querySelectorAll("a.topic-tag").map(a => a.textContent.trim());`,
			`const parts = url.replace(/^https?:\/\/[^/]+/, "").split(/[?#]/)[0].split("/").filter(Boolean);`,
			`return [`,
			`  { name: "仓库", type: PropType.Text, value: parts.slice(0, 2).join("/") },`,
			`  { name: "简介", type: PropType.Text, value: baseMeta.description },`,
			`  { name: "Stars", type: PropType.Number, value: stars ? (stars.getAttribute("title") || stars.textContent).replace(/,/g, "") : "" },`,
			`  { name: "语言", type: PropType.Text, value: lang ? lang.textContent.trim() : "" },`,
			`  { name: "主题", type: PropType.TextChoices, value: topics },`,
			`  { name: "封面", type: PropType.Text, value: baseMeta.thumbnail, typeArgs: { subType: "image" } },`,
			`  { name: "链接", type: PropType.Text, value: url, typeArgs: { subType: "link" } },`,
			`].filter(p => Array.isArray(p.value) ? p.value.length > 0 : p.value);`,
		},
		Enabled:       true,
		DownloadCover: false,
	}
}
