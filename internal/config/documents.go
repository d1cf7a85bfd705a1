package config

// settingsDocument models config/config.yaml: where things live and which
// services are called.
type settingsDocument struct {
	DataIngestion struct {
		RawDataDir        string   `yaml:"raw_data_dir"`
		IngestedDataDir   string   `yaml:"ingested_data_dir"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
		MaxFileSize       int64    `yaml:"max_file_size"`
		MaxPixels         *int64   `yaml:"max_pixels"`
	} `yaml:"data_ingestion"`

	ImageCaptioning struct {
		IngestedDataDir string `yaml:"ingested_data_dir"`
		CaptionsDir     string `yaml:"captions_dir"`
		ServiceSettings `yaml:",inline"`
		Seed            int `yaml:"seed"`
	} `yaml:"image_captioning"`

	StoryGeneration struct {
		CaptionsDir     string `yaml:"captions_dir"`
		StoriesDir      string `yaml:"stories_dir"`
		ServiceSettings `yaml:",inline"`
	} `yaml:"story_generation"`

	ArtifactStore struct {
		S3Bucket string `yaml:"s3_bucket"`
		S3Prefix string `yaml:"s3_prefix"`
		Region   string `yaml:"region"`
	} `yaml:"artifact_store"`
}

// ServiceSettings is shared by both inference sections.
type ServiceSettings struct {
	Provider  string `yaml:"provider"`
	ModelName string `yaml:"model_name"`
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	Timeout   string `yaml:"timeout"`
}

// paramsDocument models params.yaml: tunables that change outputs but not wiring.
// Pointers distinguish an absent key from an explicit zero.
type paramsDocument struct {
	DataIngestion struct {
		ResizeShape []int `yaml:"resize_shape"`
		JPEGQuality *int  `yaml:"jpeg_quality"`
	} `yaml:"data_ingestion"`

	ImageCaptioning struct {
		TaskPrompt   string `yaml:"task_prompt"`
		MaxNewTokens *int   `yaml:"max_new_tokens"`
		NumBeams     *int   `yaml:"num_beams"`
	} `yaml:"image_captioning"`

	StoryGeneration struct {
		MaxTokens           *int     `yaml:"max_tokens"`
		Temperature         *float64 `yaml:"temperature"`
		TopP                *float64 `yaml:"top_p"`
		RepetitionPenalty   *float64 `yaml:"repetition_penalty"`
		DefaultTheme        string   `yaml:"default_theme"`
		DefaultWordLimit    *int     `yaml:"default_word_limit"`
		StoryPromptTemplate string   `yaml:"story_prompt_template"`
		EchoDelimiter       *string  `yaml:"echo_delimiter"`
	} `yaml:"story_generation"`
}
